package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/internal/pkg/rag/evaluator"
	"github.com/kart-io/bhasha/internal/rag/biz"
	"github.com/kart-io/bhasha/internal/rag/handler"
	"github.com/kart-io/bhasha/internal/rag/store/storetest"
	"github.com/kart-io/bhasha/pkg/infra/middleware"
	"github.com/kart-io/bhasha/pkg/llm"
	"github.com/kart-io/bhasha/pkg/objectstore"
	jwtopts "github.com/kart-io/bhasha/pkg/options/jwt"
	"github.com/kart-io/bhasha/pkg/security/auth/jwt"
	"github.com/kart-io/bhasha/pkg/security/authz/casbin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubEmbedding struct{}

func (stubEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (s stubEmbedding) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, _ := s.Embed(ctx, []string{text})
	return out[0], nil
}

func (stubEmbedding) Name() string { return "stub" }

type stubChat struct{}

func (stubChat) Chat(context.Context, []llm.Message) (string, error)   { return "ok", nil }
func (stubChat) Generate(context.Context, string, string) (string, error) { return "ok", nil }
func (stubChat) Name() string                                          { return "stub" }

type testEnv struct {
	engine *gin.Engine
	jwt    *jwt.JWT
}

func newTestEnv(t *testing.T, rateLimit int, opts ...func(*Config)) *testEnv {
	t.Helper()

	db := storetest.NewDB(t)
	factory := storetest.NewFactory(t)
	objects := objectstore.NewLocal(afero.NewMemMapFs(), "/v1/files")

	embedder := biz.NewEmbedder(func() (llm.EmbeddingProvider, error) { return stubEmbedding{}, nil }, nil,
		&biz.EmbedderConfig{Dimension: 2, BatchSize: 4})
	ingestion := biz.DefaultIngestionConfig()
	ingestion.KnowledgeBasePath = "/missing/kb.txt"
	docs := biz.NewDocumentService(factory, objects, afero.NewMemMapFs(), biz.NewChunker(nil), embedder, ingestion)
	memory := biz.NewMemory(factory, nil)
	evaluation := biz.NewEvaluationService(factory, evaluator.New(embedder), nil)
	orchestrator := biz.NewOrchestrator(embedder, biz.NewRetriever(factory.Chunks(), nil), memory, stubChat{}, evaluation, nil, nil)

	jwtOpts := jwtopts.NewOptions()
	jwtOpts.Key = strings.Repeat("k", jwtopts.MinKeyLength)
	verifier, err := jwt.New(jwtOpts)
	require.NoError(t, err)

	enforcer, err := casbin.NewGormEnforcer(db)
	require.NoError(t, err)

	cors := middleware.DefaultCORSConfig
	cors.AllowOrigins = []string{"http://localhost:3000"}

	cfg := &Config{
		Auth:           middleware.AuthConfig{Verifier: verifier},
		Enforcer:       enforcer,
		RateLimit:      middleware.RateLimitConfig{Limit: rateLimit, Window: time.Minute},
		CORS:           cors,
		RequestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	engine := gin.New()
	Register(engine, cfg, &Handlers{
		Document: handler.NewDocumentHandler(docs, ingestion.MaxFileSize, ingestion.MaxBatchFiles),
		RAG:      handler.NewRAGHandler(orchestrator, memory, evaluation),
		Chat:     handler.NewChatHandler(orchestrator, memory, docs, ingestion.MaxFileSize),
		System:   handler.NewSystemHandler(docs, nil, embedder, stubChat{}, objects, handler.SystemInfo{}),
		File:     handler.NewFileHandler(objects, ingestion.SystemOwner),
	})

	return &testEnv{engine: engine, jwt: verifier}
}

func (e *testEnv) request(t *testing.T, method, path, subject string, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		token, err := e.jwt.Sign(subject, roles...)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	env := newTestEnv(t, 100)

	tests := []struct {
		name     string
		method   string
		path     string
		subject  string
		roles    []string
		wantCode int
	}{
		{"存活探针无需认证", http.MethodGet, "/healthz", "", nil, http.StatusOK},
		{"版本信息无需认证", http.MethodGet, "/version", "", nil, http.StatusOK},
		{"指标无需认证", http.MethodGet, "/metrics", "", nil, http.StatusOK},
		{"健康检查无需认证", http.MethodGet, "/v1/system/health", "", nil, http.StatusOK},
		{"系统状态无需认证", http.MethodGet, "/v1/system/status", "", nil, http.StatusOK},
		{"文档列表需要认证", http.MethodGet, "/v1/documents", "", nil, http.StatusUnauthorized},
		{"已认证用户可列出文档", http.MethodGet, "/v1/documents", "u1", nil, http.StatusOK},
		{"已认证用户可列出会话", http.MethodGet, "/v1/chat", "u1", nil, http.StatusOK},
		{"普通用户不能初始化系统", http.MethodPost, "/v1/system/initialize", "u1", nil, http.StatusForbidden},
		{"普通用户不能删除知识库", http.MethodDelete, "/v1/system/knowledge-base", "u1", nil, http.StatusForbidden},
		{"普通用户不能查看评估统计", http.MethodGet, "/v1/rag/evaluation/stats", "u1", nil, http.StatusForbidden},
		{"管理员可以查看评估统计", http.MethodGet, "/v1/rag/evaluation/stats", "ops", []string{casbin.RoleAdmin}, http.StatusOK},
		{"管理员删除不存在的知识库", http.MethodDelete, "/v1/system/knowledge-base", "ops", []string{casbin.RoleAdmin}, http.StatusNotFound},
		{"未知路由", http.MethodGet, "/v2/unknown", "", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, tt.method, tt.path, tt.subject, tt.roles...)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestRequestIDAndCORSHeaders(t *testing.T) {
	env := newTestEnv(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAskRateLimited(t *testing.T) {
	env := newTestEnv(t, 1)

	// 第一次请求因缺少 question 返回 400，但已消耗配额
	w := env.request(t, http.MethodPost, "/v1/rag/ask", "u1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, http.MethodPost, "/v1/rag/ask", "u1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// 配额按用户计算
	w = env.request(t, http.MethodPost, "/v1/rag/ask", "u2")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 未限流的路由不受影响
	w = env.request(t, http.MethodPost, "/v1/rag/feedback", "u1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSwagger(t *testing.T) {
	t.Run("默认不开放文档", func(t *testing.T) {
		env := newTestEnv(t, 100)
		w := env.request(t, http.MethodGet, "/swagger/doc.json", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("开启后无需认证", func(t *testing.T) {
		env := newTestEnv(t, 100, func(c *Config) { c.EnableSwagger = true })
		w := env.request(t, http.MethodGet, "/swagger/doc.json", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "/v1/rag/ask")
		assert.Contains(t, w.Body.String(), "Bhasha RAG Service")
	})
}
