package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
	"github.com/kart-io/bhasha/pkg/errors"
)

// DefaultSeparators 递归切分的分隔符优先级，孟加拉语 danda 优先于英文句号。
var DefaultSeparators = []string{"\n\n", "\n", textutil.Danda, ".", "!", "?", ";", ":", " ", ""}

// ChunkerConfig 分块配置，长度均以 Unicode 字符计。
type ChunkerConfig struct {
	ChunkSize      int `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap   int `json:"chunk-overlap" mapstructure:"chunk-overlap"`
	MinChunkLength int `json:"min-chunk-length" mapstructure:"min-chunk-length"`
}

// DefaultChunkerConfig 返回默认分块配置。
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		ChunkSize:      500,
		ChunkOverlap:   50,
		MinChunkLength: 50,
	}
}

// Validate 校验分块配置。
func (c *ChunkerConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk-size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap > c.ChunkSize {
		return fmt.Errorf("chunk-overlap %d must be within [0, %d]", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// ChunkDraft 待写入的文档块。
type ChunkDraft struct {
	Content string
	// Index 原始切分序号，过短片段被丢弃后可能不连续。
	Index    int
	Metadata map[string]any
}

// Chunker 将清洗后的文本递归切分为重叠的文档块。
type Chunker struct {
	config     *ChunkerConfig
	separators []string
}

// NewChunker 创建分块器。
func NewChunker(config *ChunkerConfig) *Chunker {
	if config == nil {
		config = DefaultChunkerConfig()
	}
	return &Chunker{
		config:     config,
		separators: DefaultSeparators,
	}
}

// Chunk 清洗文本、检测语言并切分，附加块级元数据。
// 任一步骤失败时不返回部分结果。
func (c *Chunker) Chunk(text string, metadata map[string]any, title string) ([]ChunkDraft, error) {
	if err := c.config.Validate(); err != nil {
		return nil, errors.ErrIngestion.WithCause(err)
	}

	// 1. 清洗
	cleaned := textutil.NormalizeText(text)

	// 2. 整篇文档的语言
	language := textutil.DetectLanguage(cleaned)

	// 3. 递归切分
	pieces := c.Split(cleaned)

	// 4. 丢弃过短片段并附加元数据
	drafts := make([]ChunkDraft, 0, len(pieces))
	for i, piece := range pieces {
		if textutil.RuneLen(strings.TrimSpace(piece)) < c.config.MinChunkLength {
			continue
		}

		meta := make(map[string]any, len(metadata)+5)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["chunk_index"] = i
		meta["language"] = string(language)
		meta["document_title"] = title
		meta["chunk_length"] = textutil.RuneLen(piece)
		meta["word_count"] = textutil.WordCount(piece)

		drafts = append(drafts, ChunkDraft{
			Content:  piece,
			Index:    i,
			Metadata: meta,
		})
	}

	return drafts, nil
}

// Split 按分隔符优先级递归切分文本，分隔符保留在后一片段的开头。
func (c *Chunker) Split(text string) []string {
	return c.splitText(text, c.separators)
}

func (c *Chunker) splitText(text string, separators []string) []string {
	// 选择文本中出现的第一个分隔符，其后的分隔符用于继续切分超长片段
	separator := separators[len(separators)-1]
	var next []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			next = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, s := range splitKeepSeparator(text, separator) {
		if textutil.RuneLen(s) < c.config.ChunkSize {
			good = append(good, s)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.mergeSplits(good)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, s)
		} else {
			final = append(final, c.splitText(s, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.mergeSplits(good)...)
	}
	return final
}

// mergeSplits 将小片段合并为不超过 ChunkSize 的块，相邻块保留最多 ChunkOverlap 的重叠。
func (c *Chunker) mergeSplits(splits []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	size, overlap := c.config.ChunkSize, c.config.ChunkOverlap

	for _, d := range splits {
		n := textutil.RuneLen(d)
		if total+n > size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > overlap || (total+n > size && total > 0) {
				total -= textutil.RuneLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, d)
		total += n
	}

	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func splitKeepSeparator(text, separator string) []string {
	if separator == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, separator)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, separator+p)
	}
	return out
}
