package biz

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/pool"
	"github.com/kart-io/bhasha/pkg/infra/tracing"
	"github.com/kart-io/bhasha/pkg/llm"
)

const tracerName = "bhasha/rag"

// EmbedderFactory 创建嵌入模型，首次使用时调用一次。
type EmbedderFactory func() (llm.EmbeddingProvider, error)

// EmbedderConfig 嵌入配置。
type EmbedderConfig struct {
	// Dimension 向量维度，模型返回的向量长度必须一致。
	Dimension int `json:"embedding-dim" mapstructure:"embedding-dim"`
	// BatchSize 单次请求的最大文本数。
	BatchSize int `json:"embedding-batch-size" mapstructure:"embedding-batch-size"`
}

// DefaultEmbedderConfig 返回默认配置 (paraphrase-multilingual-MiniLM-L12-v2)。
func DefaultEmbedderConfig() *EmbedderConfig {
	return &EmbedderConfig{
		Dimension: 384,
		BatchSize: 32,
	}
}

// EmbeddingResult 异步向量化结果。
type EmbeddingResult struct {
	Embedding []float32
	Err       error
}

// BatchEmbeddingResult 异步批量向量化结果。
type BatchEmbeddingResult struct {
	Embeddings [][]float32
	Err        error
}

// Embedder 将文本转换为固定维度的向量。
// 模型在首次调用时初始化，初始化失败后每次调用都返回同一错误。
type Embedder struct {
	factory EmbedderFactory
	config  *EmbedderConfig
	pool    *pool.Pool

	once     sync.Once
	provider llm.EmbeddingProvider
	initErr  error
}

// NewEmbedder 创建向量化器。p 为空时在调用方 goroutine 中执行推理。
func NewEmbedder(factory EmbedderFactory, p *pool.Pool, config *EmbedderConfig) *Embedder {
	if config == nil {
		config = DefaultEmbedderConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultEmbedderConfig().BatchSize
	}
	return &Embedder{
		factory: factory,
		config:  config,
		pool:    p,
	}
}

// Dimension 返回向量维度。
func (e *Embedder) Dimension() int {
	return e.config.Dimension
}

func (e *Embedder) model() (llm.EmbeddingProvider, error) {
	e.once.Do(func() {
		if e.factory == nil {
			e.initErr = errors.ErrEmbedderInit.WithMessage("embedding model factory is not configured")
			return
		}
		provider, err := e.factory()
		if err == nil && provider == nil {
			err = stderrors.New("factory returned nil provider")
		}
		if err != nil {
			logger.Errorw("嵌入模型初始化失败", "error", err.Error())
			e.initErr = errors.ErrEmbedderInit.WithCause(err)
			return
		}
		logger.Infow("嵌入模型已初始化", "provider", provider.Name(), "dimension", e.config.Dimension)
		e.provider = provider
	})
	return e.provider, e.initErr
}

// Encode 将单个文本向量化。空白文本返回零向量，不调用模型。
func (e *Embedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.config.Dimension), nil
	}

	out, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EncodeBatch 批量向量化，结果与输入一一对应。
func (e *Embedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// 空白文本直接填零向量，其余送入模型
	var (
		pending []string
		indexes []int
	)
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, e.config.Dimension)
			continue
		}
		pending = append(pending, t)
		indexes = append(indexes, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	provider, err := e.model()
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "embedder.EncodeBatch")
	defer tracing.EndSpan(span)
	tracing.AddSpanAttributes(ctx,
		tracing.String("embedding.provider", provider.Name()),
		tracing.Int("embedding.texts", len(pending)),
	)

	for start := 0; start < len(pending); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(pending))
		batch := pending[start:end]

		vectors, err := e.run(ctx, func(ctx context.Context) ([][]float32, error) {
			return provider.Embed(ctx, batch)
		})
		if err != nil {
			tracing.RecordError(ctx, err)
			return nil, wrapErrno(errors.ErrEmbedding, err)
		}
		if len(vectors) != len(batch) {
			err := errors.ErrEmbedding.WithMessagef("model returned %d vectors for %d texts", len(vectors), len(batch))
			tracing.RecordError(ctx, err)
			return nil, err
		}

		for j, v := range vectors {
			if len(v) != e.config.Dimension {
				err := errors.ErrDimensionMismatch.WithMessagef(
					"embedding dimension mismatch: expected %d, got %d", e.config.Dimension, len(v))
				tracing.RecordError(ctx, err)
				return nil, err
			}
			out[indexes[start+j]] = v
		}
	}

	return out, nil
}

func (e *Embedder) run(ctx context.Context, fn func(ctx context.Context) ([][]float32, error)) ([][]float32, error) {
	if e.pool == nil {
		return fn(ctx)
	}
	return pool.Do(ctx, e.pool, fn)
}

// EncodeAsync 异步向量化单个文本，结果通道只发送一次。
func (e *Embedder) EncodeAsync(ctx context.Context, text string) <-chan EmbeddingResult {
	ch := make(chan EmbeddingResult, 1)
	go func() {
		defer close(ch)
		v, err := e.Encode(ctx, text)
		ch <- EmbeddingResult{Embedding: v, Err: err}
	}()
	return ch
}

// EncodeBatchAsync 异步批量向量化。
func (e *Embedder) EncodeBatchAsync(ctx context.Context, texts []string) <-chan BatchEmbeddingResult {
	ch := make(chan BatchEmbeddingResult, 1)
	go func() {
		defer close(ch)
		v, err := e.EncodeBatch(ctx, texts)
		ch <- BatchEmbeddingResult{Embeddings: v, Err: err}
	}()
	return ch
}

// CalculateSimilarity 计算余弦相似度。
func (e *Embedder) CalculateSimilarity(a, b []float32) float64 {
	return textutil.CosineSimilarity(a, b)
}

// wrapErrno 保留已有的错误码，否则包装为 fallback。
func wrapErrno(fallback *errors.Errno, err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Errno
	if stderrors.As(err, &e) {
		return err
	}
	return fallback.WithCause(err)
}
