package biz

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/internal/rag/store"
	"github.com/kart-io/bhasha/internal/rag/store/storetest"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/objectstore"
)

var storyText = strings.Repeat("Anupam travelled to Kalyani's village by the morning train. ", 30)

type documentFixture struct {
	store   store.Factory
	fs      afero.Fs
	objects *objectstore.Local
	svc     *DocumentService
}

func newDocumentFixture(t *testing.T, factory store.Factory) *documentFixture {
	t.Helper()

	if factory == nil {
		factory = storetest.NewFactory(t)
	}
	fs := afero.NewMemMapFs()
	objects := objectstore.NewLocal(afero.NewBasePathFs(fs, "/uploads"), "/v1/files")
	chunker := NewChunker(&ChunkerConfig{ChunkSize: 200, ChunkOverlap: 20, MinChunkLength: 20})
	embedder := NewEmbedder(staticFactory(newFakeEmbedding(3)), nil, &EmbedderConfig{Dimension: 3})

	cfg := DefaultIngestionConfig()
	cfg.MaxFileSize = 64 << 10
	cfg.KnowledgeBasePath = "/kb/HSC26.txt"
	cfg.KnowledgeBaseTitle = "HSC26 Bangla 1st Paper"

	return &documentFixture{
		store:   factory,
		fs:      fs,
		objects: objects,
		svc:     NewDocumentService(factory, objects, fs, chunker, embedder, cfg),
	}
}

func countFiles(t *testing.T, fs afero.Fs, dir string) int {
	t.Helper()
	n := 0
	_ = afero.Walk(fs, dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return nil
	})
	return n
}

func TestUpload(t *testing.T) {
	fx := newDocumentFixture(t, nil)
	ctx := context.Background()

	res, err := fx.svc.Upload(ctx, &UploadRequest{OwnerID: "u1", FileName: "story.txt", Data: []byte(storyText)})
	require.NoError(t, err)

	assert.Equal(t, "story.txt", res.FileName)
	assert.Equal(t, "en", res.Language)
	assert.Greater(t, res.ChunkCount, 1)
	assert.Equal(t, 1, res.PageCount)
	assert.Equal(t, "/v1/files/documents/u1/"+res.FileID+"_story.txt", res.FileURL)
	assert.Equal(t, 1, countFiles(t, fx.fs, "/uploads/documents/u1"))

	doc, err := fx.store.Documents().Get(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "story", doc.Title)
	assert.Equal(t, "u1", doc.OwnerID)
	require.NotNil(t, doc.File)
	assert.Equal(t, int64(len(storyText)), doc.File.FileSize)

	chunks, err := fx.store.Chunks().FindByDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, res.ChunkCount)
	require.NotNil(t, chunks[0].FileID)
	assert.Equal(t, res.FileID, *chunks[0].FileID)
	assert.Equal(t, "story", chunks[0].Metadata["document_title"])
	assert.Equal(t, "txt", chunks[0].Metadata["file_type"])
	assert.Positive(t, chunks[0].TokenCount)
}

func TestUploadRejected(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     []byte
		wantCode int
	}{
		{"超过大小限制", "big.txt", make([]byte, 65<<10), errors.ErrFileTooLarge.Code},
		{"不支持的格式", "story.docx", []byte(storyText), errors.ErrUnsupportedFormat.Code},
		{"没有有效内容", "empty.txt", []byte("hi"), errors.ErrIngestion.Code},
		{"非法 UTF-8", "broken.md", []byte{0xff, 0xfe, 0xfd}, errors.ErrIngestion.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newDocumentFixture(t, nil)

			_, err := fx.svc.Upload(context.Background(), &UploadRequest{OwnerID: "u1", FileName: tt.fileName, Data: tt.data})
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.wantCode), "got %v", err)
			assert.Zero(t, countFiles(t, fx.fs, "/uploads"))
		})
	}
}

// failingTX 事务总是失败的存储工厂。
type failingTX struct {
	store.Factory
}

func (failingTX) TX(context.Context, func(context.Context, store.Factory) error) error {
	return assert.AnError
}

func TestUploadRemovesObjectWhenPersistFails(t *testing.T) {
	fx := newDocumentFixture(t, failingTX{storetest.NewFactory(t)})

	_, err := fx.svc.Upload(context.Background(), &UploadRequest{OwnerID: "u1", FileName: "story.txt", Data: []byte(storyText)})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrPersistence.Code))
	assert.Zero(t, countFiles(t, fx.fs, "/uploads"))
}

func TestBatchUpload(t *testing.T) {
	fx := newDocumentFixture(t, nil)
	ctx := context.Background()

	reqs := make([]*UploadRequest, 11)
	for i := range reqs {
		reqs[i] = &UploadRequest{OwnerID: "u1", FileName: "a.txt", Data: []byte(storyText)}
	}
	_, err := fx.svc.BatchUpload(ctx, reqs)
	assert.True(t, errors.IsCode(err, errors.ErrTooManyFiles.Code))

	res, err := fx.svc.BatchUpload(ctx, []*UploadRequest{
		{OwnerID: "u1", FileName: "one.txt", Data: []byte(storyText)},
		{OwnerID: "u1", FileName: "two.exe", Data: []byte(storyText)},
		{OwnerID: "u1", FileName: "three.md", Data: []byte(storyText)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "two.exe", res.Errors[0].FileName)
}

func TestKnowledgeBaseLifecycle(t *testing.T) {
	fx := newDocumentFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(fx.fs, "/kb/HSC26.txt", []byte(storyText), 0o644))

	first, err := fx.svc.InitializeKnowledgeBase(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusInitialized, first.Status)
	assert.Positive(t, first.ChunkCount)
	assert.Positive(t, first.TotalWords)

	// 同名标题再次导入时跳过
	second, err := fx.svc.InitializeKnowledgeBase(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyExists, second.Status)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)

	doc, err := fx.store.Documents().Get(ctx, first.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "system", doc.OwnerID)
	assert.Nil(t, doc.File)

	deleted, err := fx.svc.DeleteKnowledgeBase(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, deleted.Status)
	assert.Equal(t, int64(first.ChunkCount), deleted.ChunksDeleted)

	missing, err := fx.svc.DeleteKnowledgeBase(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, missing.Status)
}

func TestInitializeKnowledgeBaseMissingFile(t *testing.T) {
	fx := newDocumentFixture(t, nil)

	_, err := fx.svc.InitializeKnowledgeBase(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrIngestion.Code))
}

func TestListAndDetails(t *testing.T) {
	fx := newDocumentFixture(t, nil)
	ctx := context.Background()
	long := strings.Repeat(storyText, 2)

	res, err := fx.svc.Upload(ctx, &UploadRequest{OwnerID: "u1", FileName: "long.txt", Data: []byte(long)})
	require.NoError(t, err)
	_, err = fx.svc.Upload(ctx, &UploadRequest{OwnerID: "u2", FileName: "other.txt", Data: []byte(storyText)})
	require.NoError(t, err)

	docs, err := fx.svc.ListDocuments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "long", docs[0].Title)
	assert.Equal(t, int64(res.ChunkCount), docs[0].ChunkCount)
	require.NotNil(t, docs[0].File)
	assert.Equal(t, "long.txt", docs[0].File.FileName)

	all, err := fx.svc.ListDocuments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	details, err := fx.svc.GetDocumentDetails(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(details.ContentPreview, "..."))
	assert.Len(t, []rune(details.ContentPreview), contentPreviewRunes+3)
	assert.Len(t, details.ChunksPreview, chunkPreviewCount)
	assert.Equal(t, 0, details.ChunksPreview[0].ChunkIndex)

	_, err = fx.svc.GetDocumentDetails(ctx, "missing")
	assert.True(t, errors.IsCode(err, errors.ErrDocumentNotFound.Code))
}

func TestDeleteDocument(t *testing.T) {
	fx := newDocumentFixture(t, nil)
	ctx := context.Background()

	res, err := fx.svc.Upload(ctx, &UploadRequest{OwnerID: "u1", FileName: "story.txt", Data: []byte(storyText)})
	require.NoError(t, err)

	err = fx.svc.DeleteDocument(ctx, res.DocumentID, "u2")
	assert.True(t, errors.IsCode(err, errors.ErrDocumentForbidden.Code))

	require.NoError(t, fx.svc.DeleteDocument(ctx, res.DocumentID, "u1"))
	assert.Zero(t, countFiles(t, fx.fs, "/uploads"))

	n, err := fx.store.Chunks().CountByDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = fx.svc.DeleteDocument(ctx, res.DocumentID, "u1")
	assert.True(t, errors.IsCode(err, errors.ErrDocumentNotFound.Code))
}

func TestDocumentStats(t *testing.T) {
	fx := newDocumentFixture(t, nil)
	ctx := context.Background()

	res, err := fx.svc.Upload(ctx, &UploadRequest{OwnerID: "u1", FileName: "story.txt", Data: []byte(storyText)})
	require.NoError(t, err)

	stats, err := fx.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalDocuments)
	assert.Equal(t, int64(res.ChunkCount), stats.TotalChunks)
	assert.Equal(t, map[string]int64{"en": 1}, stats.LanguageDistribution)
	assert.Equal(t, map[string]int64{"en": int64(res.ChunkCount)}, stats.ChunkLanguageDistribution)
}
