// Package docutil 提供文档提取与知识库目录扫描工具。
package docutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dslipak/pdf"
	"github.com/spf13/afero"

	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
)

// 支持的文档格式。
const (
	FormatPDF  = "pdf"
	FormatTXT  = "txt"
	FormatText = "text"
	FormatMD   = "md"
)

// SupportedExtensions 允许上传与导入的文件扩展名。
var SupportedExtensions = []string{".txt", ".pdf", ".md"}

// ErrUnsupportedFormat 不支持的文档格式。
var ErrUnsupportedFormat = fmt.Errorf("unsupported document format")

// Extraction 文档提取结果。
type Extraction struct {
	Text      string
	PageCount int
	WordCount int
	Metadata  map[string]any
}

// FormatFromName 根据文件名返回格式（小写，不含点）。
func FormatFromName(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// IsSupported 判断文件扩展名是否受支持。
func IsSupported(name string) bool {
	return textutil.ContainsString(SupportedExtensions, strings.ToLower(filepath.Ext(name)))
}

// Extract 从原始字节提取文本。
// pdf 按页提取并以空行连接；txt/text/md 要求合法 UTF-8。
func Extract(raw []byte, format, filename string) (*Extraction, error) {
	switch strings.ToLower(format) {
	case FormatPDF:
		return extractPDF(raw)
	case FormatTXT, FormatText, FormatMD:
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("%s: invalid UTF-8 text", filename)
		}
		text := string(raw)
		return &Extraction{
			Text:      text,
			PageCount: 1,
			WordCount: textutil.WordCount(text),
			Metadata: map[string]any{
				"file_type": "text",
				"filename":  filename,
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func extractPDF(raw []byte) (ext *Extraction, err error) {
	// 损坏的 PDF 可能让解析器 panic
	defer func() {
		if r := recover(); r != nil {
			ext, err = nil, fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read PDF page %d: %w", i, err)
		}
		pages = append(pages, text)
	}

	text := strings.Join(pages, "\n\n")
	info := r.Trailer().Key("Info")
	return &Extraction{
		Text:      text,
		PageCount: numPages,
		WordCount: textutil.WordCount(text),
		Metadata: map[string]any{
			"page_count": numPages,
			"title":      info.Key("Title").Text(),
			"author":     info.Key("Author").Text(),
		},
	}, nil
}

// FindFiles 在目录中递归查找匹配扩展名的文件，结果有序。
func FindFiles(fs afero.Fs, dir string, extensions []string) ([]string, error) {
	extMap := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extMap[strings.ToLower(ext)] = true
	}

	var files []string
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && extMap[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// TitleFromName 去掉目录与扩展名作为文档标题。
func TitleFromName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
