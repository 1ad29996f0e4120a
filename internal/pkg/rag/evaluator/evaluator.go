// Package evaluator 为 RAG 回答计算质量指标。
//
// 五个指标均在 [0,1] 区间：
//   - Groundedness: 回答与各来源向量的最大余弦相似度
//   - Relevance: 问题与各来源向量的平均余弦相似度
//   - Completeness: 长度与句子结构得分的平均
//   - LanguageConsistency: 问题与回答孟加拉文占比的一致程度
//   - SourceUtilization: 回答词汇在各来源中的平均覆盖率
//
// Overall 为五项的简单平均。
package evaluator

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
)

// Encoder 文本向量化接口。
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Scores 回答质量评分。
type Scores struct {
	Groundedness        float64 `json:"groundedness"`
	Relevance           float64 `json:"relevance"`
	Completeness        float64 `json:"completeness"`
	LanguageConsistency float64 `json:"language_consistency"`
	SourceUtilization   float64 `json:"source_utilization"`
	Overall             float64 `json:"overall_score"`
}

// Evaluator 回答质量评估器。
type Evaluator struct {
	encoder Encoder
}

// New 创建评估器。
func New(encoder Encoder) *Evaluator {
	return &Evaluator{encoder: encoder}
}

// ScoreAnswer 计算全部指标。
// 单个向量指标失败时记为 0 并记录日志，不影响其余指标；仅在 ctx 结束时返回错误。
func (e *Evaluator) ScoreAnswer(ctx context.Context, query, answer string, sources []string) (*Scores, error) {
	s := &Scores{
		Groundedness:        e.Groundedness(ctx, answer, sources),
		Relevance:           e.Relevance(ctx, query, sources),
		Completeness:        Completeness(answer),
		LanguageConsistency: LanguageConsistency(query, answer),
		SourceUtilization:   SourceUtilization(answer, sources),
	}
	s.Overall = (s.Groundedness + s.Relevance + s.Completeness + s.LanguageConsistency + s.SourceUtilization) / 5

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// Groundedness 回答与来源的最大余弦相似度，无来源或回答为空时为 0。
func (e *Evaluator) Groundedness(ctx context.Context, answer string, sources []string) float64 {
	if len(sources) == 0 || answer == "" {
		return 0
	}
	sims, err := e.similarities(ctx, answer, sources)
	if err != nil {
		logger.Warnw("groundedness scoring failed", "error", err.Error())
		return 0
	}
	best := sims[0]
	for _, v := range sims[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

// Relevance 问题与来源的平均余弦相似度，无来源或问题为空时为 0。
func (e *Evaluator) Relevance(ctx context.Context, query string, sources []string) float64 {
	if len(sources) == 0 || query == "" {
		return 0
	}
	sims, err := e.similarities(ctx, query, sources)
	if err != nil {
		logger.Warnw("relevance scoring failed", "error", err.Error())
		return 0
	}
	var sum float64
	for _, v := range sims {
		sum += v
	}
	return sum / float64(len(sims))
}

func (e *Evaluator) similarities(ctx context.Context, text string, sources []string) ([]float64, error) {
	vec, err := e.encoder.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	vecs, err := e.encoder.EncodeBatch(ctx, sources)
	if err != nil {
		return nil, err
	}
	sims := make([]float64, len(vecs))
	for i, v := range vecs {
		sims[i] = textutil.CosineSimilarity(vec, v)
	}
	return sims, nil
}

// Completeness 长度得分 min(词数/20,1) 与结构得分 min(句数/3,1) 的平均。
func Completeness(answer string) float64 {
	if answer == "" {
		return 0
	}
	lengthScore := min(float64(textutil.WordCount(answer))/20, 1)
	structureScore := min(float64(textutil.CountSentences(answer))/3, 1)
	return (lengthScore + structureScore) / 2
}

// LanguageConsistency 1 - |问题孟加拉文占比 - 回答孟加拉文占比|，任一方没有字母时为 0.5。
func LanguageConsistency(query, answer string) float64 {
	q, okQ := textutil.BengaliRatio(query)
	a, okA := textutil.BengaliRatio(answer)
	if !okQ || !okA {
		return 0.5
	}
	diff := q - a
	if diff < 0 {
		diff = -diff
	}
	return max(1-diff, 0)
}

// SourceUtilization 各来源与回答的词汇交集占回答词汇数的平均值。
func SourceUtilization(answer string, sources []string) float64 {
	if len(sources) == 0 {
		return 0
	}
	answerWords := textutil.LowerWordSet(answer)
	denom := float64(max(len(answerWords), 1))

	var sum float64
	for _, src := range sources {
		overlap := 0
		for w := range textutil.LowerWordSet(src) {
			if _, ok := answerWords[w]; ok {
				overlap++
			}
		}
		sum += float64(overlap) / denom
	}
	return sum / float64(len(sources))
}
