// Package metrics 提供 RAG 服务的业务指标收集。
package metrics

import (
	"sync"
	"time"

	"github.com/kart-io/bhasha/pkg/observability/metrics"
)

const namespace = "rag"

// RAGMetrics RAG 服务业务指标。
type RAGMetrics struct {
	// 问答指标
	asksTotal    metrics.Counter
	asksByResult metrics.CounterVec
	askDuration  metrics.Histogram

	// 向量化指标
	embeddingTexts  metrics.Counter
	embeddingErrors metrics.Counter

	// 检索指标
	retrievalTotal    metrics.Counter
	retrievalDuration metrics.Histogram
	retrievalErrors   metrics.Counter

	// LLM 调用指标
	llmCallsTotal    metrics.Counter
	llmCallsDuration metrics.Histogram
	llmCallsErrors   metrics.Counter

	// 导入指标
	documentsIndexed metrics.Counter
	chunksIndexed    metrics.Counter
	indexErrors      metrics.Counter

	// 评估指标
	evaluationsTotal  metrics.Counter
	evaluationsErrors metrics.Counter
}

var (
	globalRAGMetrics *RAGMetrics
	ragMetricsMu     sync.Mutex
)

// GetRAGMetrics 获取全局 RAG 指标实例，首次调用时注册到默认 registry。
func GetRAGMetrics() *RAGMetrics {
	ragMetricsMu.Lock()
	defer ragMetricsMu.Unlock()

	if globalRAGMetrics == nil {
		globalRAGMetrics = newRAGMetrics()
		globalRAGMetrics.register(metrics.DefaultRegistry)
	}
	return globalRAGMetrics
}

func newRAGMetrics() *RAGMetrics {
	latency := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	return &RAGMetrics{
		asksTotal:    metrics.NewCounter(namespace+"_asks_total", "Total number of answered questions."),
		asksByResult: metrics.NewCounterVec(namespace+"_asks_by_approach_total", "Answered questions by approach."),
		askDuration:  metrics.NewHistogram(namespace+"_ask_duration_seconds", "End-to-end answer latency.", latency),

		embeddingTexts:  metrics.NewCounter(namespace+"_embedding_texts_total", "Number of texts sent to the embedding model."),
		embeddingErrors: metrics.NewCounter(namespace+"_embedding_errors_total", "Number of embedding failures."),

		retrievalTotal:    metrics.NewCounter(namespace+"_retrieval_total", "Total number of retrievals."),
		retrievalDuration: metrics.NewHistogram(namespace+"_retrieval_duration_seconds", "Retrieval latency.", nil),
		retrievalErrors:   metrics.NewCounter(namespace+"_retrieval_errors_total", "Number of retrieval errors."),

		llmCallsTotal:    metrics.NewCounter(namespace+"_llm_calls_total", "Total number of LLM calls."),
		llmCallsDuration: metrics.NewHistogram(namespace+"_llm_call_duration_seconds", "LLM call latency.", latency),
		llmCallsErrors:   metrics.NewCounter(namespace+"_llm_calls_errors_total", "Number of LLM call errors."),

		documentsIndexed: metrics.NewCounter(namespace+"_documents_indexed_total", "Number of ingested documents."),
		chunksIndexed:    metrics.NewCounter(namespace+"_chunks_indexed_total", "Number of stored chunks."),
		indexErrors:      metrics.NewCounter(namespace+"_index_errors_total", "Number of ingestion failures."),

		evaluationsTotal:  metrics.NewCounter(namespace+"_evaluations_total", "Number of stored answer evaluations."),
		evaluationsErrors: metrics.NewCounter(namespace+"_evaluations_errors_total", "Number of failed answer evaluations."),
	}
}

func (m *RAGMetrics) register(r *metrics.Registry) {
	for _, metric := range []metrics.Metric{
		m.asksTotal, m.asksByResult, m.askDuration,
		m.embeddingTexts, m.embeddingErrors,
		m.retrievalTotal, m.retrievalDuration, m.retrievalErrors,
		m.llmCallsTotal, m.llmCallsDuration, m.llmCallsErrors,
		m.documentsIndexed, m.chunksIndexed, m.indexErrors,
		m.evaluationsTotal, m.evaluationsErrors,
	} {
		r.Register(metric)
	}
}

// RecordAsk 记录一次问答及其回答方式 (rag / fallback / error_fallback)。
func (m *RAGMetrics) RecordAsk(approach string, duration time.Duration) {
	m.asksTotal.Inc()
	m.asksByResult.With(map[string]string{"approach": approach}).Inc()
	m.askDuration.Observe(duration.Seconds())
}

// RecordEmbedding 记录向量化请求。
func (m *RAGMetrics) RecordEmbedding(texts int, err error) {
	if err != nil {
		m.embeddingErrors.Inc()
		return
	}
	m.embeddingTexts.Add(float64(texts))
}

// RecordRetrieval 记录检索操作。
func (m *RAGMetrics) RecordRetrieval(duration time.Duration, err error) {
	m.retrievalTotal.Inc()
	if err != nil {
		m.retrievalErrors.Inc()
		return
	}
	m.retrievalDuration.Observe(duration.Seconds())
}

// RecordLLMCall 记录 LLM 调用。
func (m *RAGMetrics) RecordLLMCall(duration time.Duration, err error) {
	m.llmCallsTotal.Inc()
	if err != nil {
		m.llmCallsErrors.Inc()
		return
	}
	m.llmCallsDuration.Observe(duration.Seconds())
}

// RecordIndexing 记录文档导入。
func (m *RAGMetrics) RecordIndexing(documents, chunks int, err error) {
	if err != nil {
		m.indexErrors.Inc()
		return
	}
	m.documentsIndexed.Add(float64(documents))
	m.chunksIndexed.Add(float64(chunks))
}

// RecordEvaluation 记录回答评估。
func (m *RAGMetrics) RecordEvaluation(err error) {
	if err != nil {
		m.evaluationsErrors.Inc()
		return
	}
	m.evaluationsTotal.Inc()
}

// Stats 返回主要计数的快照。
func (m *RAGMetrics) Stats() map[string]any {
	return map[string]any{
		"asks": map[string]any{
			"total": m.asksTotal.Get(),
		},
		"embedding": map[string]any{
			"texts":  m.embeddingTexts.Get(),
			"errors": m.embeddingErrors.Get(),
		},
		"retrieval": map[string]any{
			"total":  m.retrievalTotal.Get(),
			"errors": m.retrievalErrors.Get(),
		},
		"llm": map[string]any{
			"total":  m.llmCallsTotal.Get(),
			"errors": m.llmCallsErrors.Get(),
		},
		"indexing": map[string]any{
			"documents": m.documentsIndexed.Get(),
			"chunks":    m.chunksIndexed.Get(),
			"errors":    m.indexErrors.Get(),
		},
		"evaluation": map[string]any{
			"total":  m.evaluationsTotal.Get(),
			"errors": m.evaluationsErrors.Get(),
		},
	}
}

// Export 导出 Prometheus 文本格式的全部指标。
func Export() string {
	return metrics.Export()
}

// Reset 用新的计数器替换全局实例（仅用于测试）。
func (m *RAGMetrics) Reset() {
	ragMetricsMu.Lock()
	defer ragMetricsMu.Unlock()

	globalRAGMetrics = newRAGMetrics()
	globalRAGMetrics.register(metrics.DefaultRegistry)
}
