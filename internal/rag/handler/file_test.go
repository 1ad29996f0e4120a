package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/internal/rag/metrics"
)

func TestFileServe(t *testing.T) {
	fx := newFixture(t)
	res := fx.upload(t, "u1", "story.txt", storyText)
	require.True(t, strings.HasPrefix(res.FileURL, "/v1/files/"))

	tests := []struct {
		name     string
		path     string
		owner    string
		wantCode int
	}{
		{"所有者读取", res.FileURL, "u1", http.StatusOK},
		{"其他用户不可见", res.FileURL, "u2", http.StatusNotFound},
		{"文件不存在", "/v1/files/documents/u1/missing.txt", "u1", http.StatusNotFound},
		{"不在 documents 目录下", "/v1/files/other/u1/x.txt", "u1", http.StatusNotFound},
		{"路径穿越", "/v1/files/documents/u1/../../secret", "u1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fx.get(tt.path, tt.owner)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, storyText, w.Body.String())
				assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
				assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")
			}
		})
	}
}

func TestSystemOwnerFilesReadable(t *testing.T) {
	fx := newFixture(t)
	res := fx.upload(t, "system", "guide.md", storyText)

	w := fx.get(res.FileURL, "u1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	fx := newFixture(t)
	fx.engine.GET("/healthz", Healthz)
	fx.engine.GET("/metrics", Metrics)

	w := fx.get("/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	fx.upload(t, "u1", "story.txt", storyText)
	w = fx.get("/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, metrics.Export(), w.Body.String())
}
