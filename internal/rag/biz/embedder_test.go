package biz

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/pool"
	"github.com/kart-io/bhasha/pkg/llm"
)

func newTestPool(t *testing.T, typ pool.Type) *pool.Pool {
	t.Helper()
	p, err := pool.NewPool(string(typ)+"-test", typ, &pool.Config{Capacity: 4})
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestEmbedderBlankTextReturnsZeroVector(t *testing.T) {
	model := newFakeEmbedding(4)
	e := NewEmbedder(staticFactory(model), nil, &EmbedderConfig{Dimension: 4})

	v, err := e.Encode(context.Background(), "   \n\t")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 4), v)
	assert.Zero(t, model.calls.Load())
}

func TestEmbedderEncodeBatch(t *testing.T) {
	model := newFakeEmbedding(3)
	model.vectors["a"] = unitVector(3, 0)
	model.vectors["b"] = unitVector(3, 1)
	e := NewEmbedder(staticFactory(model), newTestPool(t, pool.EmbeddingPool), &EmbedderConfig{Dimension: 3, BatchSize: 1})

	out, err := e.EncodeBatch(context.Background(), []string{"a", "", "b"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, unitVector(3, 0), out[0])
	assert.Equal(t, make([]float32, 3), out[1])
	assert.Equal(t, unitVector(3, 1), out[2])

	// 空白文本不送入模型，每批一个文本
	assert.EqualValues(t, 2, model.calls.Load())
	assert.EqualValues(t, 2, model.texts.Load())
}

func TestEmbedderDimensionMismatch(t *testing.T) {
	model := newFakeEmbedding(8)
	e := NewEmbedder(staticFactory(model), nil, &EmbedderConfig{Dimension: 4})

	_, err := e.Encode(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDimensionMismatch.Code))
}

func TestEmbedderModelError(t *testing.T) {
	model := newFakeEmbedding(4)
	model.err = errModelDown
	e := NewEmbedder(staticFactory(model), nil, &EmbedderConfig{Dimension: 4})

	_, err := e.Encode(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrEmbedding.Code))
	assert.True(t, stderrors.Is(err, errModelDown))
}

func TestEmbedderInitOnceAndSticky(t *testing.T) {
	var calls atomic.Int64
	e := NewEmbedder(func() (llm.EmbeddingProvider, error) {
		calls.Add(1)
		return nil, errModelDown
	}, nil, &EmbedderConfig{Dimension: 4})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Encode(context.Background(), "hello")
			assert.True(t, errors.IsCode(err, errors.ErrEmbedderInit.Code))
		}()
	}
	wg.Wait()

	_, err := e.EncodeBatch(context.Background(), []string{"again"})
	assert.True(t, errors.IsCode(err, errors.ErrEmbedderInit.Code))
	assert.EqualValues(t, 1, calls.Load())
}

func TestEmbedderAsync(t *testing.T) {
	model := newFakeEmbedding(2)
	model.vectors["x"] = unitVector(2, 0)
	e := NewEmbedder(staticFactory(model), nil, &EmbedderConfig{Dimension: 2})

	res := <-e.EncodeAsync(context.Background(), "x")
	require.NoError(t, res.Err)
	assert.Equal(t, unitVector(2, 0), res.Embedding)

	batch := <-e.EncodeBatchAsync(context.Background(), []string{"x", " "})
	require.NoError(t, batch.Err)
	assert.Len(t, batch.Embeddings, 2)
}

func TestEmbedderCalculateSimilarity(t *testing.T) {
	e := NewEmbedder(nil, nil, nil)
	v := []float32{0.3, 0.4, 0.5}

	assert.InDelta(t, 1.0, e.CalculateSimilarity(v, v), 1e-6)
	assert.Equal(t, 0.0, e.CalculateSimilarity(v, []float32{0, 0, 0}))
}
