package biz

import (
	"context"
	stderrors "errors"
	"math"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
	"github.com/kart-io/bhasha/internal/rag/metrics"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/pool"
	"github.com/kart-io/bhasha/pkg/infra/tracing"
	"github.com/kart-io/bhasha/pkg/llm"
)

// Approach 回答方式。
type Approach string

const (
	ApproachRAG           Approach = "rag"
	ApproachFallback      Approach = "fallback"
	ApproachErrorFallback Approach = "error_fallback"
)

const (
	fallbackConfidence = 0.5
	errorConfidence    = 0.1
	// noChunkConfidence 没有检索结果时的置信度。
	noChunkConfidence = 0.3

	reasonLowRelevance = "low_chunk_relevance"
)

// OrchestratorConfig 问答流程配置。
type OrchestratorConfig struct {
	TopK int `json:"top-k" mapstructure:"top-k"`
	// RelevanceThreshold 最高相似度低于该值时不使用检索上下文。
	RelevanceThreshold float64 `json:"relevance-threshold" mapstructure:"relevance-threshold"`
	// GenerationTimeout 单次生成的最长时间，超时视为生成失败。
	GenerationTimeout time.Duration `json:"generation-timeout" mapstructure:"generation-timeout"`
	// EvaluateAnswers 回答后是否在后台评估。
	EvaluateAnswers bool `json:"evaluate-answers" mapstructure:"evaluate-answers"`

	RAGPrompt      string `json:"rag-prompt" mapstructure:"rag-prompt"`
	FallbackPrompt string `json:"fallback-prompt" mapstructure:"fallback-prompt"`
}

// DefaultOrchestratorConfig 返回默认配置。
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		TopK:               5,
		RelevanceThreshold: 0.3,
		GenerationTimeout:  60 * time.Second,
		EvaluateAnswers:    true,
	}
}

// AskRequest 问答请求。ChatID 为空时不读取也不写入会话记忆。
type AskRequest struct {
	Question    string
	ChatID      string
	OwnerID     string
	DocumentIDs []string
}

// Answer 问答结果。
type Answer struct {
	Answer          string           `json:"answer"`
	Sources         []RetrievedChunk `json:"sources"`
	Confidence      float64          `json:"confidence"`
	ResponseTime    float64          `json:"response_time"`
	Language        string           `json:"language"`
	ChunksRetrieved int              `json:"chunks_retrieved"`
	ApproachUsed    Approach         `json:"approach_used"`
	ChatID          string           `json:"chat_id,omitempty"`
	// MessageID AI 回答消息的 ID，用于提交反馈。
	MessageID string `json:"message_id,omitempty"`
}

// Outcome 一次问答的结果：Grounded、Fallback 或 Failed。
type Outcome interface {
	outcome()
}

// Grounded 基于检索上下文生成的回答。
type Grounded struct {
	Chunks        []RetrievedChunk
	Answer        string
	MaxSimilarity float64
}

// Fallback 检索结果不够相关时使用通用知识生成的回答。
type Fallback struct {
	Chunks        []RetrievedChunk
	Answer        string
	MaxSimilarity float64
}

// Failed 流程中任一步骤失败。
type Failed struct {
	Reason error
}

func (Grounded) outcome() {}
func (Fallback) outcome() {}
func (Failed) outcome()   {}

// Orchestrator 串联语言检测、向量化、检索、记忆与生成。
type Orchestrator struct {
	embedder   *Embedder
	retriever  *Retriever
	memory     *Memory
	chat       llm.ChatProvider
	prompts    *PromptBuilder
	evaluation *EvaluationService
	generation *pool.Pool
	config     *OrchestratorConfig
	metrics    *metrics.RAGMetrics
}

// NewOrchestrator 创建问答编排器。evaluation 与 generation 可以为空。
func NewOrchestrator(
	embedder *Embedder,
	retriever *Retriever,
	memory *Memory,
	chat llm.ChatProvider,
	evaluation *EvaluationService,
	generation *pool.Pool,
	config *OrchestratorConfig,
) *Orchestrator {
	if config == nil {
		config = DefaultOrchestratorConfig()
	}
	return &Orchestrator{
		embedder:   embedder,
		retriever:  retriever,
		memory:     memory,
		chat:       chat,
		prompts:    NewPromptBuilder(config.RAGPrompt, config.FallbackPrompt),
		evaluation: evaluation,
		generation: generation,
		config:     config,
		metrics:    metrics.GetRAGMetrics(),
	}
}

// Ask 回答问题，总是返回结构完整的结果。
// 失败时返回与问题语言一致的致歉回答；会话持久化失败只记录日志。
func (o *Orchestrator) Ask(ctx context.Context, req *AskRequest) *Answer {
	start := time.Now()
	language := textutil.DetectLanguage(req.Question)

	ctx, span := tracing.StartSpan(ctx, tracerName, "orchestrator.Ask")
	defer tracing.EndSpan(span)
	tracing.AddSpanAttributes(ctx, tracing.String("rag.language", string(language)))

	logger.Infow("处理问题",
		"language", language,
		"chat_id", req.ChatID,
		"question", textutil.TruncateString(req.Question, 50),
	)

	outcome := o.Resolve(ctx, req, language)
	answer := o.toAnswer(outcome, language)
	answer.ChatID = req.ChatID
	answer.ResponseTime = time.Since(start).Seconds()

	if failed, ok := outcome.(Failed); ok {
		tracing.RecordError(ctx, failed.Reason)
		logger.Errorw("问答流程失败", "chat_id", req.ChatID, "error", failed.Reason.Error())
	} else if req.ChatID != "" {
		answer.MessageID = o.persist(ctx, req, answer, outcome)
	}

	o.metrics.RecordAsk(string(answer.ApproachUsed), time.Since(start))
	return answer
}

// Resolve 执行检索与生成并返回结果变体。
func (o *Orchestrator) Resolve(ctx context.Context, req *AskRequest, language textutil.Language) Outcome {
	// 1. 问题向量化
	query, err := o.embedder.Encode(ctx, req.Question)
	o.metrics.RecordEmbedding(1, err)
	if err != nil {
		return Failed{Reason: err}
	}

	// 2. 检索
	retrievalStart := time.Now()
	chunks, err := o.retriever.Search(ctx, query, o.config.TopK, SearchFilter{
		Language:    language,
		DocumentIDs: req.DocumentIDs,
	})
	o.metrics.RecordRetrieval(time.Since(retrievalStart), err)
	if err != nil {
		return Failed{Reason: err}
	}

	// 3. 会话上下文
	var recent []Turn
	if req.ChatID != "" {
		blended, err := o.memory.BlendContext(ctx, req.ChatID, req.Question)
		if err != nil {
			logger.Warnw("读取会话上下文失败，忽略", "chat_id", req.ChatID, "error", err.Error())
		} else {
			recent = blended.RecentMessages
		}
	}

	// 4. 相关性判断
	maxSim := maxSimilarity(chunks)
	if len(chunks) == 0 || maxSim < o.config.RelevanceThreshold {
		logger.Infow("检索结果相关性不足，使用通用回答",
			"max_similarity", maxSim,
			"threshold", o.config.RelevanceThreshold,
		)
		text, err := o.generate(ctx, o.prompts.Fallback(req.Question))
		if err != nil {
			return Failed{Reason: err}
		}
		return Fallback{Chunks: chunks, Answer: text, MaxSimilarity: maxSim}
	}

	// 5. 基于上下文生成
	text, err := o.generate(ctx, o.prompts.RAG(req.Question, chunks, recent))
	if err != nil {
		return Failed{Reason: err}
	}
	return Grounded{Chunks: chunks, Answer: text, MaxSimilarity: maxSim}
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "orchestrator.generate")
	defer tracing.EndSpan(span)

	if o.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.GenerationTimeout)
		defer cancel()
	}

	start := time.Now()
	call := func(ctx context.Context) (string, error) {
		return o.chat.Generate(ctx, prompt, "")
	}

	var (
		text string
		err  error
	)
	if o.generation != nil {
		text, err = pool.Do(ctx, o.generation, call)
	} else {
		text, err = call(ctx)
	}
	o.metrics.RecordLLMCall(time.Since(start), err)

	if err != nil {
		tracing.RecordError(ctx, err)
		if stderrors.Is(err, context.DeadlineExceeded) {
			return "", errors.ErrGenerationTimeout.WithCause(err)
		}
		return "", wrapErrno(errors.ErrGeneration, err)
	}
	return text, nil
}

func (o *Orchestrator) toAnswer(outcome Outcome, language textutil.Language) *Answer {
	answer := &Answer{Language: string(language), Sources: []RetrievedChunk{}}

	switch v := outcome.(type) {
	case Grounded:
		answer.Answer = v.Answer
		answer.Sources = v.Chunks
		answer.ChunksRetrieved = len(v.Chunks)
		answer.Confidence = GroundedConfidence(v.Chunks, v.Answer)
		answer.ApproachUsed = ApproachRAG
	case Fallback:
		answer.Answer = v.Answer
		answer.Sources = nonNil(v.Chunks)
		answer.ChunksRetrieved = len(v.Chunks)
		answer.Confidence = fallbackConfidence
		answer.ApproachUsed = ApproachFallback
	case Failed:
		answer.Answer = ErrorAnswer(language)
		answer.Confidence = errorConfidence
		answer.ApproachUsed = ApproachErrorFallback
	}
	return answer
}

// persist 写入用户问题与 AI 回答，返回 AI 消息 ID；失败时返回空串。
func (o *Orchestrator) persist(ctx context.Context, req *AskRequest, answer *Answer, outcome Outcome) string {
	meta := ragMetadata(outcome, answer.Language)

	if _, err := o.memory.StoreMessage(ctx, req.ChatID, req.Question, model.RoleUser,
		WithDocumentIDs(req.DocumentIDs...)); err != nil {
		logger.Errorw("保存用户消息失败", "chat_id", req.ChatID, "error", err.Error())
		return ""
	}

	msg, err := o.memory.StoreMessage(ctx, req.ChatID, answer.Answer, model.RoleAI,
		WithRetrievedChunks(answer.Sources),
		WithGroundingScore(answer.Confidence),
		WithRAGMetadata(meta),
		WithResponseTime(answer.ResponseTime),
	)
	if err != nil {
		logger.Errorw("保存回答失败", "chat_id", req.ChatID, "error", err.Error())
		return ""
	}

	if o.evaluation != nil && o.config.EvaluateAnswers {
		var sources []string
		if g, ok := outcome.(Grounded); ok {
			sources = make([]string, len(g.Chunks))
			for i, c := range g.Chunks {
				sources[i] = c.Content
			}
		}
		o.evaluation.EvaluateAsync(msg.ID, req.Question, answer.Answer, sources)
	}
	return msg.ID
}

func ragMetadata(outcome Outcome, language string) *model.RAGMetadata {
	switch v := outcome.(type) {
	case Grounded:
		return &model.RAGMetadata{
			Approach:      string(ApproachRAG),
			ChunksUsed:    len(v.Chunks),
			MaxSimilarity: v.MaxSimilarity,
			Language:      language,
		}
	case Fallback:
		return &model.RAGMetadata{
			Approach:      string(ApproachFallback),
			ChunksUsed:    0,
			MaxSimilarity: v.MaxSimilarity,
			Language:      language,
			Reason:        reasonLowRelevance,
		}
	}
	return nil
}

// GroundedConfidence 计算基于上下文回答的置信度：
// 最高相似度 + min(块数*0.1, 0.3) + min(词数/20, 1)*0.1，上限 1。
func GroundedConfidence(chunks []RetrievedChunk, answer string) float64 {
	if len(chunks) == 0 {
		return noChunkConfidence
	}
	chunkBonus := math.Min(float64(len(chunks))*0.1, 0.3)
	quality := math.Min(float64(textutil.WordCount(answer))/20, 1) * 0.1
	return math.Min(maxSimilarity(chunks)+chunkBonus+quality, 1)
}

func maxSimilarity(chunks []RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	best := chunks[0].Similarity
	for _, c := range chunks[1:] {
		best = math.Max(best, c.Similarity)
	}
	return best
}

func nonNil(chunks []RetrievedChunk) []RetrievedChunk {
	if chunks == nil {
		return []RetrievedChunk{}
	}
	return chunks
}
