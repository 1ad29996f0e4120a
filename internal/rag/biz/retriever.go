package biz

import (
	"context"
	"fmt"
	"sort"

	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
	"github.com/kart-io/bhasha/internal/rag/store"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/tracing"
	"github.com/kart-io/bhasha/pkg/utils/json"
)

// LanguageFilter 检索时的语言过滤策略。
type LanguageFilter string

const (
	// LanguageFilterStrict 只检索与问题同语言的文档，mixed 问题不过滤。
	LanguageFilterStrict LanguageFilter = "strict"
	// LanguageFilterNone 不按语言过滤。
	LanguageFilterNone LanguageFilter = "none"
	// LanguageFilterRelaxed 先按 strict 检索，候选为空时退回不过滤。
	LanguageFilterRelaxed LanguageFilter = "relaxed"
)

// Valid 判断策略是否合法。
func (f LanguageFilter) Valid() bool {
	return f == LanguageFilterStrict || f == LanguageFilterNone || f == LanguageFilterRelaxed
}

// RetrieverConfig 检索器配置。
type RetrieverConfig struct {
	// TopK 默认返回的结果数量。
	TopK int `json:"top-k" mapstructure:"top-k"`
	// LanguageFilter 语言过滤策略。
	LanguageFilter LanguageFilter `json:"language-filter" mapstructure:"language-filter"`
}

// DefaultRetrieverConfig 返回默认检索配置。
func DefaultRetrieverConfig() *RetrieverConfig {
	return &RetrieverConfig{
		TopK:           5,
		LanguageFilter: LanguageFilterStrict,
	}
}

// SearchFilter 检索过滤条件。
type SearchFilter struct {
	Language    textutil.Language
	DocumentIDs []string
}

// RetrievedChunk 检索命中的文档块。
type RetrievedChunk struct {
	ChunkID          string         `json:"chunk_id"`
	Content          string         `json:"content"`
	Similarity       float64        `json:"similarity"`
	Metadata         map[string]any `json:"metadata"`
	ChunkIndex       int            `json:"chunk_index"`
	DocumentID       string         `json:"document_id"`
	DocumentTitle    string         `json:"document_title"`
	DocumentLanguage string         `json:"document_language"`
	FileName         string         `json:"file_name,omitempty"`
}

// Retriever 在持久化的文档块上做暴力余弦检索。
type Retriever struct {
	chunks store.ChunkStore
	config *RetrieverConfig
}

// NewRetriever 创建检索器。
func NewRetriever(chunks store.ChunkStore, config *RetrieverConfig) *Retriever {
	if config == nil {
		config = DefaultRetrieverConfig()
	}
	if !config.LanguageFilter.Valid() {
		config.LanguageFilter = LanguageFilterStrict
	}
	return &Retriever{chunks: chunks, config: config}
}

// Search 返回与查询向量最相似的 topK 个文档块，按相似度降序。
// topK <= 0 时使用配置的默认值。
func (r *Retriever) Search(ctx context.Context, query []float32, topK int, filter SearchFilter) ([]RetrievedChunk, error) {
	if topK <= 0 {
		topK = r.config.TopK
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "retriever.Search")
	defer tracing.EndSpan(span)

	// 1. 按语言策略取候选
	candidates, err := r.candidates(ctx, filter)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, errors.ErrRetrieval.WithCause(err)
	}
	if len(candidates) == 0 {
		return []RetrievedChunk{}, nil
	}

	// 2. 逐块计算相似度
	results := make([]RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		var embedding []float32
		if err := json.UnmarshalString(c.Embedding, &embedding); err != nil {
			logger.Warnw("解析文档块向量失败，跳过", "chunk_id", c.ID, "error", err.Error())
			continue
		}
		results = append(results, toRetrieved(c, textutil.CosineSimilarity(query, embedding)))
	}

	// 3. 稳定排序并截断
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}

	tracing.AddSpanAttributes(ctx,
		tracing.Int("retrieval.candidates", len(candidates)),
		tracing.Int("retrieval.results", len(results)),
	)
	return results, nil
}

func (r *Retriever) candidates(ctx context.Context, filter SearchFilter) ([]*model.Chunk, error) {
	unfiltered := store.ChunkFilter{DocumentIDs: filter.DocumentIDs}

	if r.config.LanguageFilter == LanguageFilterNone || filter.Language == "" || filter.Language == textutil.LanguageMixed {
		return r.chunks.FindByFilter(ctx, unfiltered)
	}

	strict := store.ChunkFilter{Language: string(filter.Language), DocumentIDs: filter.DocumentIDs}
	out, err := r.chunks.FindByFilter(ctx, strict)
	if err != nil {
		return nil, fmt.Errorf("按语言 %s 查询候选失败: %w", filter.Language, err)
	}
	if len(out) > 0 || r.config.LanguageFilter == LanguageFilterStrict {
		return out, nil
	}

	logger.Debugw("同语言候选为空，放宽语言过滤", "language", filter.Language)
	return r.chunks.FindByFilter(ctx, unfiltered)
}

func toRetrieved(c *model.Chunk, similarity float64) RetrievedChunk {
	rc := RetrievedChunk{
		ChunkID:    c.ID,
		Content:    c.Content,
		Similarity: similarity,
		Metadata:   map[string]any(c.Metadata),
		ChunkIndex: c.ChunkIndex,
		DocumentID: c.DocumentID,
	}
	if rc.Metadata == nil {
		rc.Metadata = map[string]any{}
	}
	if doc := c.Document; doc != nil {
		rc.DocumentTitle = doc.Title
		rc.DocumentLanguage = doc.Language
		if doc.File != nil {
			rc.FileName = doc.File.FileName
		}
	}
	return rc
}
