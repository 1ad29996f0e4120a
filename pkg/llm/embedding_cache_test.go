package llm

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mockProvider
	batches [][]string
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, texts)
	return c.mockProvider.Embed(ctx, texts)
}

func TestCachedEmbeddingProviderWithoutRedis(t *testing.T) {
	inner := &countingEmbedder{mockProvider: mockProvider{name: "m"}}
	c := NewCachedEmbeddingProvider(inner, nil, nil)

	got, err := c.EmbedSingle(context.Background(), "আমি")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Len(t, inner.batches, 1)
	assert.Equal(t, "m-cached", c.Name())

	n, err := c.ClearCache(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestCachedEmbeddingProviderRedisDown(t *testing.T) {
	// 不可达的 Redis：读写失败只记录日志，结果照常返回
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = rdb.Close() }()

	inner := &countingEmbedder{mockProvider: mockProvider{name: "m"}}
	c := NewCachedEmbeddingProvider(inner, rdb, &EmbeddingCacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "emb:", Namespace: "mini:384"})

	got, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.Len(t, inner.batches, 1)
	assert.Equal(t, []string{"a", "b"}, inner.batches[0])
}

func TestCacheKeyScopedByNamespace(t *testing.T) {
	a := NewCachedEmbeddingProvider(&mockProvider{}, nil, &EmbeddingCacheConfig{KeyPrefix: "emb:", Namespace: "m1:384"})
	b := NewCachedEmbeddingProvider(&mockProvider{}, nil, &EmbeddingCacheConfig{KeyPrefix: "emb:", Namespace: "m2:768"})

	assert.NotEqual(t, a.CacheKey("text"), b.CacheKey("text"))
	assert.Equal(t, a.CacheKey("text"), a.CacheKey("text"))
	assert.Contains(t, a.CacheKey("text"), "emb:m1:384:")
}
