package textutil_test

import (
	"strings"
	"testing"

	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{
			name:     "相同向量",
			a:        []float32{1.0, 2.0, 3.0},
			b:        []float32{1.0, 2.0, 3.0},
			expected: 1.0,
		},
		{
			name:     "正交向量",
			a:        []float32{1.0, 0.0, 0.0},
			b:        []float32{0.0, 1.0, 0.0},
			expected: 0.0,
		},
		{
			name:     "相反向量",
			a:        []float32{1.0, 0.0, 0.0},
			b:        []float32{-1.0, 0.0, 0.0},
			expected: -1.0,
		},
		{
			name:     "零向量",
			a:        []float32{0, 0, 0},
			b:        []float32{1.0, 2.0, 3.0},
			expected: 0.0,
		},
		{
			name:     "空向量",
			a:        []float32{},
			b:        []float32{},
			expected: 0.0,
		},
		{
			name:     "长度不匹配",
			a:        []float32{1.0, 2.0},
			b:        []float32{1.0},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := textutil.CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.expected, result, 0.0001)
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected textutil.Language
	}{
		{"十个孟加拉文字符", "আমারসোনারবাংলাআমি", textutil.LanguageBengali},
		{"十个英文字母", "helloworld", textutil.LanguageEnglish},
		{"各占一半", "আমারসোনা" + "abcde", textutil.LanguageMixed},
		{"没有字母", "12345 ।।", textutil.LanguageEnglish},
		{"空字符串", "", textutil.LanguageEnglish},
		{"孟加拉语句子", "অনুপমের মামা কে ছিলেন?", textutil.LanguageBengali},
		{"英文句子", "Who was Anupam's uncle?", textutil.LanguageEnglish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.DetectLanguage(tt.text))
		})
	}
}

func TestDetectLanguageBoundaries(t *testing.T) {
	// 7 bn + 3 en = 0.7, 不大于 0.7
	assert.Equal(t, textutil.LanguageMixed, textutil.DetectLanguage("কখগঘঙচছ"+"abc"))
	// 3 bn + 7 en = 0.3, 不小于 0.3
	assert.Equal(t, textutil.LanguageMixed, textutil.DetectLanguage("কখগ"+"abcdefg"))
	// 8 bn + 2 en
	assert.Equal(t, textutil.LanguageBengali, textutil.DetectLanguage("কখগঘঙচছজ"+"ab"))
}

func TestBengaliRatio(t *testing.T) {
	ratio, ok := textutil.BengaliRatio("কখab")
	assert.True(t, ok)
	assert.InDelta(t, 0.5, ratio, 1e-9)

	_, ok = textutil.BengaliRatio("123 ...")
	assert.False(t, ok)
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"合并空白", "hello   \n\n  world", "hello world"},
		{"移除特殊字符", "price: $100 @home #tag", "price: 100 home tag"},
		{"规范 danda", "আমি ভাত খাই ।তুমি কি খাও", "আমি ভাত খাই। তুমি কি খাও"},
		{"规范逗号", "a ,b,  c", "a, b, c"},
		{"保留标点", `He said "yes" (maybe) - ok!`, `He said "yes" (maybe) - ok!`},
		{"去除首尾", "   text   ", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.NormalizeText(tt.input))
		})
	}
}

func TestNormalizeTextIdempotent(t *testing.T) {
	raw := "রবীন্দ্রনাথ ঠাকুর  ।  তিনি একজন কবি ,  লেখক।\n\nHe wrote *Gitanjali*."
	once := textutil.NormalizeText(raw)
	assert.Equal(t, once, textutil.NormalizeText(once))
}

func TestCountSentences(t *testing.T) {
	// 按 "।" 切分得到 1 个片段(无 danda)，按 "." 切分得到 2 个
	assert.Equal(t, 3, textutil.CountSentences("First one. Second one."))
	// 两个 danda 句 → 2 + 整段无 "." → 1
	assert.Equal(t, 3, textutil.CountSentences("আমি যাই। তুমি এসো।"))
	assert.Equal(t, 0, textutil.CountSentences("   "))
}

func TestLowerWordSet(t *testing.T) {
	set := textutil.LowerWordSet("The the THE cat")
	assert.Len(t, set, 2)
	assert.Contains(t, set, "the")
	assert.Contains(t, set, "cat")
}

func TestWordCountAndRuneLen(t *testing.T) {
	assert.Equal(t, 3, textutil.WordCount("  আমি  ভাত খাই "))
	assert.Equal(t, 3, textutil.RuneLen("আমি"))
	assert.Equal(t, "কখ", textutil.TruncateString("কখগ", 2))
	assert.Equal(t, "abc", textutil.TruncateString("abc", 10))
	assert.Equal(t, strings.Repeat("a", 3), textutil.TruncateString("aaaa", 3))
}
