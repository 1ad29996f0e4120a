package handler

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/internal/rag/biz"
	"github.com/kart-io/bhasha/pkg/component/storage"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/llm"
	"github.com/kart-io/bhasha/pkg/objectstore"
	"github.com/kart-io/bhasha/pkg/utils/response"
)

// Component health values.
const (
	Healthy   = "healthy"
	Unhealthy = "unhealthy"
	NoData    = "no_data"
)

// probePath 不存在的对象，用于探测对象存储是否可达。
const probePath = "healthcheck/.probe"

// SystemInfo describes the static settings reported by Status.
type SystemInfo struct {
	EmbeddingModel string `json:"embedding_model"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap"`
	TopK           int    `json:"top_k_chunks"`
}

// SystemHandler handles system initialization and health requests.
type SystemHandler struct {
	docs       *biz.DocumentService
	components *storage.Manager
	embedder   *biz.Embedder
	chat       llm.ChatProvider
	objects    objectstore.Store
	info       SystemInfo
}

// NewSystemHandler creates a new SystemHandler. components may be nil.
func NewSystemHandler(
	docs *biz.DocumentService,
	components *storage.Manager,
	embedder *biz.Embedder,
	chat llm.ChatProvider,
	objects objectstore.Store,
	info SystemInfo,
) *SystemHandler {
	return &SystemHandler{
		docs:       docs,
		components: components,
		embedder:   embedder,
		chat:       chat,
		objects:    objects,
		info:       info,
	}
}

// InitializeResponse is returned by Initialize.
type InitializeResponse struct {
	Message             string                   `json:"message"`
	KnowledgeBaseStatus *biz.KnowledgeBaseResult `json:"knowledge_base_status"`
	VectorStoreStats    *biz.DocumentStats       `json:"vector_store_stats"`
	SystemReady         bool                     `json:"system_ready"`
}

// ChunkSettings is part of StatusResponse.
type ChunkSettings struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
	TopK         int `json:"top_k_chunks"`
}

// StatusResponse is returned by Status.
type StatusResponse struct {
	SystemReady      bool               `json:"system_ready"`
	VectorStoreStats *biz.DocumentStats `json:"vector_store_stats"`
	EmbeddingModel   string             `json:"embedding_model"`
	ChunkSettings    ChunkSettings      `json:"chunk_settings"`
}

// HealthResponse is returned by Health. Component values are "healthy",
// "no_data" or "unhealthy: <reason>".
type HealthResponse struct {
	Overall    string            `json:"overall"`
	Components map[string]string `json:"components"`
}

// DeleteKnowledgeBaseResponse is returned by DeleteKnowledgeBase.
type DeleteKnowledgeBaseResponse struct {
	Message       string `json:"message"`
	Status        string `json:"status"`
	DocumentID    string `json:"document_id"`
	ChunksDeleted int64  `json:"chunks_deleted"`
}

// Initialize ingests the built-in knowledge base and reports readiness.
func (h *SystemHandler) Initialize(c *gin.Context) {
	ctx := c.Request.Context()
	logger.Info("Starting system initialization...")

	kb, err := h.docs.InitializeKnowledgeBase(ctx)
	if err != nil {
		response.Fail(c, err)
		return
	}
	stats, err := h.docs.Stats(ctx)
	if err != nil {
		response.Fail(c, err)
		return
	}

	ready := (kb.Status == biz.StatusInitialized || kb.Status == biz.StatusAlreadyExists) && stats.TotalChunks > 0
	logger.Infow("System initialization completed", "ready", ready, "status", kb.Status)

	response.OK(c, &InitializeResponse{
		Message:             "System initialization completed successfully",
		KnowledgeBaseStatus: kb,
		VectorStoreStats:    stats,
		SystemReady:         ready,
	})
}

// Status reports knowledge-base counts and chunking settings.
func (h *SystemHandler) Status(c *gin.Context) {
	stats, err := h.docs.Stats(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, &StatusResponse{
		SystemReady:      stats.TotalDocuments > 0 && stats.TotalChunks > 0,
		VectorStoreStats: stats,
		EmbeddingModel:   h.info.EmbeddingModel,
		ChunkSettings: ChunkSettings{
			ChunkSize:    h.info.ChunkSize,
			ChunkOverlap: h.info.ChunkOverlap,
			TopK:         h.info.TopK,
		},
	})
}

// Health checks every component. It always answers 200 and reports
// failures in the body.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	components := make(map[string]string)

	if h.components != nil {
		for name, status := range h.components.HealthCheckAll(ctx) {
			components[name] = healthValue(status.Healthy, status.Error)
		}
	}

	stats, err := h.docs.Stats(ctx)
	switch {
	case err != nil:
		components["knowledge_base"] = unhealthy(err)
	case stats.TotalChunks == 0:
		components["knowledge_base"] = NoData
	default:
		components["knowledge_base"] = Healthy
	}

	components["embedder"] = h.checkEmbedder(ctx)
	components["generator"] = h.checkGenerator()
	components["object_storage"] = h.checkObjectStorage(ctx)

	response.OK(c, &HealthResponse{Overall: overall(components), Components: components})
}

// DeleteKnowledgeBase removes the built-in knowledge base document.
func (h *SystemHandler) DeleteKnowledgeBase(c *gin.Context) {
	result, err := h.docs.DeleteKnowledgeBase(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	if result.Status == biz.StatusNotFound {
		response.Fail(c, errors.ErrNotFound.WithMessage("Knowledge base not found"))
		return
	}

	logger.Infow("Knowledge base deletion completed", "chunks_deleted", result.ChunksDeleted)
	response.OK(c, &DeleteKnowledgeBaseResponse{
		Message:       result.Message,
		Status:        result.Status,
		DocumentID:    result.DocumentID,
		ChunksDeleted: result.ChunksDeleted,
	})
}

func (h *SystemHandler) checkEmbedder(ctx context.Context) string {
	if h.embedder == nil {
		return unhealthy(stderrors.New("not configured"))
	}
	vec, err := h.embedder.Encode(ctx, "test")
	if err != nil {
		return unhealthy(err)
	}
	return healthValue(len(vec) > 0, "empty embedding")
}

// checkGenerator 只检查是否已配置，探测生成会产生调用费用。
func (h *SystemHandler) checkGenerator() string {
	if h.chat == nil {
		return unhealthy(stderrors.New("not configured"))
	}
	return Healthy
}

func (h *SystemHandler) checkObjectStorage(ctx context.Context) string {
	if h.objects == nil {
		return unhealthy(stderrors.New("not configured"))
	}
	rc, err := h.objects.Open(ctx, probePath)
	if err == nil {
		_ = rc.Close()
		return Healthy
	}
	if stderrors.Is(err, objectstore.ErrNotFound) {
		return Healthy
	}
	return unhealthy(err)
}

func healthValue(ok bool, reason string) string {
	if ok {
		return Healthy
	}
	return Unhealthy + ": " + reason
}

func unhealthy(err error) string {
	return Unhealthy + ": " + err.Error()
}

func overall(components map[string]string) string {
	var failed []string
	for name, v := range components {
		if strings.HasPrefix(v, Unhealthy) {
			failed = append(failed, name)
		}
	}
	if len(failed) == 0 {
		return Healthy
	}
	sort.Strings(failed)
	return Unhealthy + ": " + strings.Join(failed, ", ")
}
