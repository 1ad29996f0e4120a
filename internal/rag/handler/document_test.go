package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/internal/rag/biz"
)

func TestDocumentUpload(t *testing.T) {
	fx := newFixture(t)

	t.Run("上传文本文档", func(t *testing.T) {
		req := multipartRequest(t, "/v1/documents/upload", nil, formFile{"file", "story.txt", storyText})
		var res biz.UploadResult
		decode(t, fx.do(req, "u1"), http.StatusOK, &res)

		assert.NotEmpty(t, res.DocumentID)
		assert.Equal(t, "story.txt", res.FileName)
		assert.Equal(t, "en", res.Language)
		assert.Greater(t, res.ChunkCount, 0)
		assert.True(t, strings.HasPrefix(res.FileURL, "/v1/files/documents/u1/"))
	})

	t.Run("缺少文件", func(t *testing.T) {
		req := multipartRequest(t, "/v1/documents/upload", map[string]string{"title": "x"})
		decode(t, fx.do(req, "u1"), http.StatusBadRequest, nil)
	})

	t.Run("文件过大", func(t *testing.T) {
		big := strings.Repeat("a", 64<<10+1)
		req := multipartRequest(t, "/v1/documents/upload", nil, formFile{"file", "big.txt", big})
		decode(t, fx.do(req, "u1"), http.StatusRequestEntityTooLarge, nil)
	})

	t.Run("不支持的格式", func(t *testing.T) {
		req := multipartRequest(t, "/v1/documents/upload", nil, formFile{"file", "slides.pptx", storyText})
		decode(t, fx.do(req, "u1"), http.StatusUnsupportedMediaType, nil)
	})
}

func TestDocumentBatchUpload(t *testing.T) {
	fx := newFixture(t)

	t.Run("部分失败不影响其他文件", func(t *testing.T) {
		req := multipartRequest(t, "/v1/documents/batch-upload", nil,
			formFile{"files", "a.txt", storyText},
			formFile{"files", "b.docx", storyText},
			formFile{"files", "c.txt", strings.Repeat("b", 64<<10+1)},
		)
		var res biz.BatchResult
		decode(t, fx.do(req, "u1"), http.StatusOK, &res)

		assert.Equal(t, 1, res.Successful)
		assert.Equal(t, 2, res.Failed)
		require.Len(t, res.Errors, 2)
		names := []string{res.Errors[0].FileName, res.Errors[1].FileName}
		assert.ElementsMatch(t, []string{"b.docx", "c.txt"}, names)
	})

	t.Run("文件数超过上限", func(t *testing.T) {
		files := make([]formFile, 4)
		for i := range files {
			files[i] = formFile{"files", "f.txt", storyText}
		}
		req := multipartRequest(t, "/v1/documents/batch-upload", nil, files...)
		decode(t, fx.do(req, "u1"), http.StatusBadRequest, nil)
	})
}

func TestDocumentListGetDelete(t *testing.T) {
	fx := newFixture(t)
	mine := fx.upload(t, "u1", "mine.txt", storyText)
	fx.upload(t, "u2", "theirs.txt", storyText)

	var list DocumentListResponse
	decode(t, fx.get("/v1/documents", "u1"), http.StatusOK, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, mine.DocumentID, list.Documents[0].ID)

	var details biz.DocumentDetails
	decode(t, fx.get("/v1/documents/"+mine.DocumentID, "u1"), http.StatusOK, &details)
	assert.Equal(t, "mine", details.Title)
	assert.NotEmpty(t, details.ChunksPreview)

	decode(t, fx.get("/v1/documents/missing", "u1"), http.StatusNotFound, nil)

	del := func(owner string) *httptest.ResponseRecorder {
		return fx.do(httptest.NewRequest(http.MethodDelete, "/v1/documents/"+mine.DocumentID, nil), owner)
	}
	decode(t, del("u2"), http.StatusForbidden, nil)

	var msg MessageResponse
	decode(t, del("u1"), http.StatusOK, &msg)
	assert.Equal(t, "Document deleted successfully", msg.Message)
	decode(t, del("u1"), http.StatusNotFound, nil)
}

func TestDocumentStatsAndInitializeKB(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, afero.WriteFile(fx.fs, kbPath, []byte(storyText), 0o644))

	var kb InitializeKBResponse
	decode(t, fx.do(httptest.NewRequest(http.MethodPost, "/v1/documents/initialize-kb", nil), "u1"), http.StatusOK, &kb)
	assert.Equal(t, biz.StatusInitialized, kb.Result.Status)

	var stats biz.DocumentStats
	decode(t, fx.get("/v1/documents/stats/overview", "u1"), http.StatusOK, &stats)
	assert.Equal(t, int64(1), stats.TotalDocuments)
	assert.Equal(t, int64(kb.Result.ChunkCount), stats.TotalChunks)
	assert.Equal(t, int64(1), stats.LanguageDistribution["en"])
}
