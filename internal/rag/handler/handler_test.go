package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/internal/pkg/rag/evaluator"
	"github.com/kart-io/bhasha/internal/rag/biz"
	"github.com/kart-io/bhasha/internal/rag/store"
	"github.com/kart-io/bhasha/internal/rag/store/storetest"
	"github.com/kart-io/bhasha/pkg/infra/middleware/common"
	"github.com/kart-io/bhasha/pkg/llm"
	"github.com/kart-io/bhasha/pkg/objectstore"
	"github.com/kart-io/bhasha/pkg/utils/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Install()
}

// ownerHeader 测试中代替认证中间件指定调用者。
const ownerHeader = "X-Test-Owner"

const kbPath = "/kb/HSC26.txt"

var storyText = strings.Repeat("Anupam travelled to Kalyani's village by the morning train. ", 30)

// fakeEmbedding 所有文本映射到同一个单位向量。
type fakeEmbedding struct {
	mu  sync.Mutex
	err error
}

func (f *fakeEmbedding) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedding) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedding) Name() string { return "fake-embedding" }

type fakeChat struct {
	answer string
}

func (f *fakeChat) Chat(ctx context.Context, _ []llm.Message) (string, error) {
	return f.Generate(ctx, "", "")
}

func (f *fakeChat) Generate(_ context.Context, _, _ string) (string, error) {
	return f.answer, nil
}

func (f *fakeChat) Name() string { return "fake-chat" }

type fixture struct {
	store     store.Factory
	fs        afero.Fs
	objects   *objectstore.Local
	embedding *fakeEmbedding
	docs      *biz.DocumentService
	memory    *biz.Memory
	engine    *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	factory := storetest.NewFactory(t)
	fs := afero.NewMemMapFs()
	objects := objectstore.NewLocal(afero.NewBasePathFs(fs, "/uploads"), "/v1/files")
	embedding := &fakeEmbedding{}
	chat := &fakeChat{answer: "Anupam travelled by train."}

	embedder := biz.NewEmbedder(func() (llm.EmbeddingProvider, error) { return embedding, nil }, nil,
		&biz.EmbedderConfig{Dimension: 3, BatchSize: 8})
	chunker := biz.NewChunker(&biz.ChunkerConfig{ChunkSize: 200, ChunkOverlap: 20, MinChunkLength: 20})

	ingestion := biz.DefaultIngestionConfig()
	ingestion.MaxFileSize = 64 << 10
	ingestion.MaxBatchFiles = 3
	ingestion.KnowledgeBasePath = kbPath

	docs := biz.NewDocumentService(factory, objects, fs, chunker, embedder, ingestion)
	memory := biz.NewMemory(factory, nil)
	evaluation := biz.NewEvaluationService(factory, evaluator.New(embedder), nil)
	orchestrator := biz.NewOrchestrator(embedder, biz.NewRetriever(factory.Chunks(), nil), memory, chat, evaluation, nil,
		&biz.OrchestratorConfig{TopK: 3, RelevanceThreshold: 0.3, GenerationTimeout: 5 * time.Second})

	documents := NewDocumentHandler(docs, ingestion.MaxFileSize, ingestion.MaxBatchFiles)
	rag := NewRAGHandler(orchestrator, memory, evaluation)
	chats := NewChatHandler(orchestrator, memory, docs, ingestion.MaxFileSize)
	system := NewSystemHandler(docs, nil, embedder, chat, objects, SystemInfo{
		EmbeddingModel: "fake-embedding",
		ChunkSize:      200,
		ChunkOverlap:   20,
		TopK:           3,
	})
	files := NewFileHandler(objects, ingestion.SystemOwner)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		owner := c.GetHeader(ownerHeader)
		if owner == "" {
			owner = "u1"
		}
		c.Request = c.Request.WithContext(common.WithOwnerID(c.Request.Context(), owner))
		c.Next()
	})
	v1 := r.Group("/v1")
	v1.POST("/documents/upload", documents.Upload)
	v1.POST("/documents/batch-upload", documents.BatchUpload)
	v1.GET("/documents", documents.List)
	v1.GET("/documents/stats/overview", documents.Stats)
	v1.POST("/documents/initialize-kb", documents.InitializeKB)
	v1.GET("/documents/:id", documents.Get)
	v1.DELETE("/documents/:id", documents.Delete)
	v1.POST("/rag/ask", rag.Ask)
	v1.POST("/rag/feedback", rag.Feedback)
	v1.GET("/rag/evaluation/stats", rag.EvaluationStats)
	v1.POST("/chat/message", chats.SendMessage)
	v1.GET("/chat", chats.List)
	v1.GET("/chat/:id/messages", chats.Messages)
	v1.DELETE("/chat/:id", chats.Delete)
	v1.POST("/system/initialize", system.Initialize)
	v1.GET("/system/status", system.Status)
	v1.GET("/system/health", system.Health)
	v1.DELETE("/system/knowledge-base", system.DeleteKnowledgeBase)
	v1.GET("/files/*path", files.Serve)

	return &fixture{
		store:     factory,
		fs:        fs,
		objects:   objects,
		embedding: embedding,
		docs:      docs,
		memory:    memory,
		engine:    r,
	}
}

func (fx *fixture) do(req *http.Request, owner string) *httptest.ResponseRecorder {
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)
	return w
}

func (fx *fixture) get(path, owner string) *httptest.ResponseRecorder {
	return fx.do(httptest.NewRequest(http.MethodGet, path, nil), owner)
}

func (fx *fixture) postJSON(t *testing.T, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return fx.do(req, owner)
}

// upload 通过 service 直接导入一个文档。
func (fx *fixture) upload(t *testing.T, owner, name, content string) *biz.UploadResult {
	t.Helper()
	res, err := fx.docs.Upload(context.Background(), &biz.UploadRequest{OwnerID: owner, FileName: name, Data: []byte(content)})
	require.NoError(t, err)
	return res
}

type formFile struct {
	field, name, content string
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = io.WriteString(part, f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decode 校验状态码并把 data 解码到 out。
func decode(t *testing.T, w *httptest.ResponseRecorder, status int, out any) envelope {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}
