// Package rag provides RAG (Retrieval-Augmented Generation) configuration options.
package rag

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/bhasha/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Language filter strategies accepted by Retrieval.LanguageFilter.
const (
	LanguageFilterStrict  = "strict"
	LanguageFilterNone    = "none"
	LanguageFilterRelaxed = "relaxed"
)

// Options contains RAG-specific configuration.
type Options struct {
	Chunker      *ChunkerOptions      `json:"chunker" mapstructure:"chunker"`
	Embedding    *EmbeddingOptions    `json:"embedding" mapstructure:"embedding"`
	Retrieval    *RetrievalOptions    `json:"retrieval" mapstructure:"retrieval"`
	Memory       *MemoryOptions       `json:"memory" mapstructure:"memory"`
	Generation   *GenerationOptions   `json:"generation" mapstructure:"generation"`
	Ingestion    *IngestionOptions    `json:"ingestion" mapstructure:"ingestion"`
	Watcher      *WatcherOptions      `json:"watcher" mapstructure:"watcher"`
	RateLimit    *RateLimitOptions    `json:"rate-limit" mapstructure:"rate-limit"`
}

// ChunkerOptions 分块配置，长度单位为字符。
type ChunkerOptions struct {
	ChunkSize      int `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap   int `json:"chunk-overlap" mapstructure:"chunk-overlap"`
	MinChunkLength int `json:"min-chunk-length" mapstructure:"min-chunk-length"`
}

// EmbeddingOptions 向量化配置。
type EmbeddingOptions struct {
	// Dimension 向量维度，必须与模型输出一致。
	Dimension int `json:"dimension" mapstructure:"dimension"`
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`
}

// RetrievalOptions 检索配置。
type RetrievalOptions struct {
	TopK int `json:"top-k" mapstructure:"top-k"`
	// RelevanceThreshold 最高相似度低于该值时走 fallback 回答。
	RelevanceThreshold float64 `json:"relevance-threshold" mapstructure:"relevance-threshold"`
	// LanguageFilter strict|none|relaxed。
	LanguageFilter string `json:"language-filter" mapstructure:"language-filter"`
}

// MemoryOptions 会话记忆配置。
type MemoryOptions struct {
	ShortTermSize  int `json:"short-term-size" mapstructure:"short-term-size"`
	LongTermWindow int `json:"long-term-window" mapstructure:"long-term-window"`
	BlendLimit     int `json:"blend-limit" mapstructure:"blend-limit"`
}

// GenerationOptions 回答生成配置。
type GenerationOptions struct {
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	EvaluateAnswers bool          `json:"evaluate-answers" mapstructure:"evaluate-answers"`
	// RAGPrompt 与 FallbackPrompt 为空时使用内置模板。
	RAGPrompt      string `json:"rag-prompt" mapstructure:"rag-prompt"`
	FallbackPrompt string `json:"fallback-prompt" mapstructure:"fallback-prompt"`
}

// IngestionOptions 文档导入配置。
type IngestionOptions struct {
	MaxFileSize        int64  `json:"max-file-size" mapstructure:"max-file-size"`
	MaxBatchFiles      int    `json:"max-batch-files" mapstructure:"max-batch-files"`
	KnowledgeBasePath  string `json:"knowledge-base-path" mapstructure:"knowledge-base-path"`
	KnowledgeBaseTitle string `json:"knowledge-base-title" mapstructure:"knowledge-base-title"`
	SystemOwner        string `json:"system-owner" mapstructure:"system-owner"`
	// AutoInitialize 启动时导入内置知识库。
	AutoInitialize bool `json:"auto-initialize" mapstructure:"auto-initialize"`
}

// WatcherOptions 知识库目录监听配置。
type WatcherOptions struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Dir      string        `json:"dir" mapstructure:"dir"`
	Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
}

// RateLimitOptions 对话与问答接口的限流配置。
type RateLimitOptions struct {
	Limit  int           `json:"limit" mapstructure:"limit"`
	Window time.Duration `json:"window" mapstructure:"window"`
	// UseRedis 多实例部署时共享计数，需要启用 Redis。
	UseRedis bool `json:"use-redis" mapstructure:"use-redis"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Chunker: &ChunkerOptions{
			ChunkSize:      500,
			ChunkOverlap:   50,
			MinChunkLength: 50,
		},
		Embedding: &EmbeddingOptions{
			Dimension: 384,
			BatchSize: 32,
		},
		Retrieval: &RetrievalOptions{
			TopK:               5,
			RelevanceThreshold: 0.3,
			LanguageFilter:     LanguageFilterStrict,
		},
		Memory: &MemoryOptions{
			ShortTermSize:  10,
			LongTermWindow: 5,
			BlendLimit:     10,
		},
		Generation: &GenerationOptions{
			Timeout:         60 * time.Second,
			EvaluateAnswers: true,
		},
		Ingestion: &IngestionOptions{
			MaxFileSize:        10 << 20,
			MaxBatchFiles:      10,
			KnowledgeBasePath:  "data/HSC26-Bangla1st-Paper.pdf",
			KnowledgeBaseTitle: "HSC26 Bangla 1st Paper",
			SystemOwner:        "system",
		},
		Watcher: &WatcherOptions{
			Dir:      "data/knowledge-base",
			Debounce: time.Second,
		},
		RateLimit: &RateLimitOptions{
			Limit:  10,
			Window: time.Minute,
		},
	}
}

// AddFlags adds flags for RAG options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "rag."

	fs.IntVar(&o.Chunker.ChunkSize, p+"chunker.chunk-size", o.Chunker.ChunkSize, "Target chunk length in characters.")
	fs.IntVar(&o.Chunker.ChunkOverlap, p+"chunker.chunk-overlap", o.Chunker.ChunkOverlap, "Characters shared by consecutive chunks.")
	fs.IntVar(&o.Chunker.MinChunkLength, p+"chunker.min-chunk-length", o.Chunker.MinChunkLength, "Chunks shorter than this are dropped.")

	fs.IntVar(&o.Embedding.Dimension, p+"embedding.dimension", o.Embedding.Dimension, "Embedding vector dimension.")
	fs.IntVar(&o.Embedding.BatchSize, p+"embedding.batch-size", o.Embedding.BatchSize, "Texts per embedding request.")

	fs.IntVar(&o.Retrieval.TopK, p+"retrieval.top-k", o.Retrieval.TopK, "Number of chunks retrieved per question.")
	fs.Float64Var(&o.Retrieval.RelevanceThreshold, p+"retrieval.relevance-threshold", o.Retrieval.RelevanceThreshold,
		"Best similarity below this answers without retrieved context.")
	fs.StringVar(&o.Retrieval.LanguageFilter, p+"retrieval.language-filter", o.Retrieval.LanguageFilter,
		"Language filter strategy (strict|none|relaxed).")

	fs.IntVar(&o.Memory.ShortTermSize, p+"memory.short-term-size", o.Memory.ShortTermSize, "Turns kept in short-term memory per chat.")
	fs.IntVar(&o.Memory.LongTermWindow, p+"memory.long-term-window", o.Memory.LongTermWindow, "Persisted messages blended into the context.")
	fs.IntVar(&o.Memory.BlendLimit, p+"memory.blend-limit", o.Memory.BlendLimit, "Maximum messages in the blended context.")

	fs.DurationVar(&o.Generation.Timeout, p+"generation.timeout", o.Generation.Timeout, "Maximum time for one answer generation.")
	fs.BoolVar(&o.Generation.EvaluateAnswers, p+"generation.evaluate-answers", o.Generation.EvaluateAnswers,
		"Evaluate answers in the background.")

	fs.Int64Var(&o.Ingestion.MaxFileSize, p+"ingestion.max-file-size", o.Ingestion.MaxFileSize, "Maximum upload size in bytes.")
	fs.IntVar(&o.Ingestion.MaxBatchFiles, p+"ingestion.max-batch-files", o.Ingestion.MaxBatchFiles, "Maximum files per batch upload.")
	fs.StringVar(&o.Ingestion.KnowledgeBasePath, p+"ingestion.knowledge-base-path", o.Ingestion.KnowledgeBasePath,
		"Path of the built-in knowledge base document.")
	fs.StringVar(&o.Ingestion.KnowledgeBaseTitle, p+"ingestion.knowledge-base-title", o.Ingestion.KnowledgeBaseTitle,
		"Title of the built-in knowledge base document.")
	fs.StringVar(&o.Ingestion.SystemOwner, p+"ingestion.system-owner", o.Ingestion.SystemOwner,
		"Owner of system-ingested documents.")
	fs.BoolVar(&o.Ingestion.AutoInitialize, p+"ingestion.auto-initialize", o.Ingestion.AutoInitialize,
		"Ingest the built-in knowledge base at startup.")

	fs.BoolVar(&o.Watcher.Enabled, p+"watcher.enabled", o.Watcher.Enabled, "Watch a directory and ingest new documents.")
	fs.StringVar(&o.Watcher.Dir, p+"watcher.dir", o.Watcher.Dir, "Directory to watch.")
	fs.DurationVar(&o.Watcher.Debounce, p+"watcher.debounce", o.Watcher.Debounce, "Delay before ingesting a changed file.")

	fs.IntVar(&o.RateLimit.Limit, p+"rate-limit.limit", o.RateLimit.Limit, "Requests per window on chat and ask routes.")
	fs.DurationVar(&o.RateLimit.Window, p+"rate-limit.window", o.RateLimit.Window, "Rate limit window.")
	fs.BoolVar(&o.RateLimit.UseRedis, p+"rate-limit.use-redis", o.RateLimit.UseRedis, "Share rate limit counters through Redis.")
}

// Validate validates the RAG options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Chunker.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunker.chunk-size must be positive"))
	}
	if o.Chunker.ChunkOverlap < 0 || o.Chunker.ChunkOverlap >= o.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunker.chunk-overlap must be in [0, chunk-size)"))
	}
	if o.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("rag.embedding.dimension must be positive"))
	}
	if o.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.embedding.batch-size must be positive"))
	}
	if o.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.retrieval.top-k must be positive"))
	}
	if o.Retrieval.RelevanceThreshold < 0 || o.Retrieval.RelevanceThreshold > 1 {
		errs = append(errs, fmt.Errorf("rag.retrieval.relevance-threshold must be in [0, 1]"))
	}
	switch o.Retrieval.LanguageFilter {
	case LanguageFilterStrict, LanguageFilterNone, LanguageFilterRelaxed:
	default:
		errs = append(errs, fmt.Errorf("unsupported rag.retrieval.language-filter %q", o.Retrieval.LanguageFilter))
	}
	if o.Memory.ShortTermSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.memory.short-term-size must be positive"))
	}
	if o.Generation.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("rag.generation.timeout must be positive"))
	}
	if o.Ingestion.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.ingestion.max-file-size must be positive"))
	}
	if o.Ingestion.MaxBatchFiles <= 0 {
		errs = append(errs, fmt.Errorf("rag.ingestion.max-batch-files must be positive"))
	}
	if o.Watcher.Enabled && o.Watcher.Dir == "" {
		errs = append(errs, fmt.Errorf("rag.watcher.dir is required when the watcher is enabled"))
	}
	if o.RateLimit.Limit <= 0 || o.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rag.rate-limit limit and window must be positive"))
	}
	return errs
}

// Complete completes the RAG options with defaults.
func (o *Options) Complete() error {
	if o.Ingestion.SystemOwner == "" {
		o.Ingestion.SystemOwner = "system"
	}
	if o.Embedding.BatchSize <= 0 {
		o.Embedding.BatchSize = 32
	}
	return nil
}
