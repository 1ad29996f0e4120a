// Package textutil 提供 RAG 相关的文本处理工具函数。
package textutil

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Language 文本语言标签。
type Language string

const (
	LanguageBengali Language = "bn"
	LanguageEnglish Language = "en"
	LanguageMixed   Language = "mixed"
)

// Valid 判断语言标签是否合法。
func (l Language) Valid() bool {
	return l == LanguageBengali || l == LanguageEnglish || l == LanguageMixed
}

// Danda 孟加拉语句末标点 "।"。
const Danda = "।"

// CosineSimilarity 计算两个向量的余弦相似度。
// 长度不一致、为空或任一向量范数为 0 时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsBengali 判断字符是否位于孟加拉文 Unicode 区块 (U+0980–U+09FF)。
func IsBengali(r rune) bool {
	return r >= 0x0980 && r <= 0x09FF
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// ScriptCounts 统计孟加拉文字符与 ASCII 字母的数量。
func ScriptCounts(text string) (bengali, english int) {
	for _, r := range text {
		switch {
		case IsBengali(r):
			bengali++
		case isASCIILetter(r):
			english++
		}
	}
	return bengali, english
}

// BengaliRatio 返回孟加拉文字符在字母中的占比。
// 文本中没有任何字母时 ok 为 false。
func BengaliRatio(text string) (ratio float64, ok bool) {
	bn, en := ScriptCounts(text)
	total := bn + en
	if total == 0 {
		return 0, false
	}
	return float64(bn) / float64(total), true
}

// DetectLanguage 根据孟加拉文占比检测语言。
//
//	> 0.7 → bn, < 0.3 → en, 其余 → mixed; 没有字母时视为 en。
func DetectLanguage(text string) Language {
	ratio, ok := BengaliRatio(text)
	if !ok {
		return LanguageEnglish
	}
	switch {
	case ratio > 0.7:
		return LanguageBengali
	case ratio < 0.3:
		return LanguageEnglish
	default:
		return LanguageMixed
	}
}

var (
	dandaSpacing = regexp.MustCompile(`\s*।\s*`)
	commaSpacing = regexp.MustCompile(`\s*,\s*`)
	newlineRuns  = regexp.MustCompile(`\n+`)
)

// allowedPunct 清洗时保留的标点。
const allowedPunct = `।,;:.!?()"'-`

func keepRune(r rune) bool {
	return IsBengali(r) ||
		isASCIILetter(r) ||
		(r >= '0' && r <= '9') ||
		unicode.IsSpace(r) ||
		strings.ContainsRune(allowedPunct, r)
}

// NormalizeText 清洗并规范化孟加拉语/英语文本：
// 合并空白，移除白名单以外的字符，规范 "।" 与 "," 两侧空格。
func NormalizeText(text string) string {
	text = CollapseWhitespace(text)

	text = strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return -1
	}, text)

	text = dandaSpacing.ReplaceAllString(text, Danda+" ")
	text = commaSpacing.ReplaceAllString(text, ", ")
	text = newlineRuns.ReplaceAllString(text, "\n")

	return strings.TrimSpace(text)
}

// CollapseWhitespace 将连续空白合并为单个空格并去除首尾空白。
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Words 按空白切分单词。
func Words(s string) []string {
	return strings.Fields(s)
}

// WordCount 返回单词数。
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// RuneLen 返回 Unicode 字符数。
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// CountSentences 统计句子数：按 "।" 切分的非空片段数加上按 "." 切分的非空片段数。
func CountSentences(s string) int {
	return countNonEmpty(strings.Split(s, Danda)) + countNonEmpty(strings.Split(s, "."))
}

func countNonEmpty(parts []string) int {
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

// LowerWordSet 返回小写单词集合。
func LowerWordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// ContainsString 检查字符串切片是否包含指定元素。
func ContainsString(slice []string, item string) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}
