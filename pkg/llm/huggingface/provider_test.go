package huggingface

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(url string) *Provider {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.APIKey = "hf-test"
	cfg.MaxRetries = 0
	return NewProviderWithConfig(cfg)
}

func TestDefaultEmbedModelIsMultilingual(t *testing.T) {
	assert.Equal(t, DefaultEmbedModel, DefaultConfig().EmbedModel)
	assert.Contains(t, DefaultEmbedModel, "multilingual")
}

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := NewProvider(map[string]any{})
	assert.Error(t, err)

	p, err := NewProvider(map[string]any{"api_key": "k", "wait_for_model": false})
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())
}

func TestEmbedSentenceVectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/pipeline/feature-extraction/"+DefaultEmbedModel))
		assert.Equal(t, "Bearer hf-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[[1,0,0],[0,1,0]]`))
	}))
	defer server.Close()

	got, err := newTestProvider(server.URL).Embed(context.Background(), []string{"আমি", "I"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, got)
}

func TestEmbedTokenVectorsMeanPooled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[[1,2],[3,4]]]`))
	}))
	defer server.Close()

	got, err := newTestProvider(server.URL).EmbedSingle(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3}, got)
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/models/"))
		_, _ = w.Write([]byte(`[{"generated_text":"উত্তর"}]`))
	}))
	defer server.Close()

	got, err := newTestProvider(server.URL).Generate(context.Background(), "প্রশ্ন", "sys")
	require.NoError(t, err)
	assert.Equal(t, "উত্তর", got)
}
