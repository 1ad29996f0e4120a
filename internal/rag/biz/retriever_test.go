package biz

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/internal/pkg/rag/textutil"
	"github.com/kart-io/bhasha/internal/rag/store/storetest"
	"github.com/kart-io/bhasha/pkg/errors"
)

func TestRetrieverIdenticalVectorRanksFirst(t *testing.T) {
	f := storetest.NewFactory(t)
	seedDocument(t, f, "owner", "doc", "en",
		[]string{"first", "second", "third"},
		[][]float32{{1, 0, 0}, {0.6, 0.8, 0}, {0, 0, 1}})

	r := NewRetriever(f.Chunks(), nil)
	got, err := r.Search(context.Background(), []float32{1, 0, 0}, 2, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "first", got[0].Content)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, "second", got[1].Content)
	assert.InDelta(t, 0.6, got[1].Similarity, 1e-6)
	assert.Equal(t, "doc", got[0].DocumentTitle)
	assert.Equal(t, "en", got[0].DocumentLanguage)
	assert.Equal(t, "doc.txt", got[0].FileName)
	assert.Equal(t, 0, got[0].ChunkIndex)
}

func TestRetrieverDefaultTopK(t *testing.T) {
	f := storetest.NewFactory(t)
	contents := make([]string, 7)
	vectors := make([][]float32, 7)
	for i := range contents {
		contents[i] = fmt.Sprintf("chunk %d", i)
		vectors[i] = []float32{1, float32(i)}
	}
	seedDocument(t, f, "owner", "doc", "en", contents, vectors)

	got, err := NewRetriever(f.Chunks(), nil).Search(context.Background(), []float32{1, 0}, 0, SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
	}
}

func TestRetrieverLanguagePolicy(t *testing.T) {
	f := storetest.NewFactory(t)
	seedDocument(t, f, "owner", "english", "en", []string{"english chunk"}, [][]float32{{1, 0}})

	tests := []struct {
		name     string
		policy   LanguageFilter
		language textutil.Language
		want     int
	}{
		{"strict 过滤掉其他语言", LanguageFilterStrict, textutil.LanguageBengali, 0},
		{"strict 同语言命中", LanguageFilterStrict, textutil.LanguageEnglish, 1},
		{"strict 下 mixed 不过滤", LanguageFilterStrict, textutil.LanguageMixed, 1},
		{"none 不过滤", LanguageFilterNone, textutil.LanguageBengali, 1},
		{"relaxed 候选为空时放宽", LanguageFilterRelaxed, textutil.LanguageBengali, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetriever(f.Chunks(), &RetrieverConfig{TopK: 5, LanguageFilter: tt.policy})
			got, err := r.Search(context.Background(), []float32{1, 0}, 5, SearchFilter{Language: tt.language})
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			assert.NotNil(t, got)
		})
	}
}

func TestRetrieverDocumentScope(t *testing.T) {
	f := storetest.NewFactory(t)
	a := seedDocument(t, f, "owner", "a", "en", []string{"from a"}, [][]float32{{1, 0}})
	seedDocument(t, f, "owner", "b", "en", []string{"from b"}, [][]float32{{1, 0}})

	got, err := NewRetriever(f.Chunks(), nil).Search(context.Background(), []float32{1, 0}, 5,
		SearchFilter{DocumentIDs: []string{a.ID}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "from a", got[0].Content)
}

func TestRetrieverSkipsUnparsableEmbedding(t *testing.T) {
	f := storetest.NewFactory(t)
	doc := seedDocument(t, f, "owner", "doc", "en", []string{"good"}, [][]float32{{1, 0}})
	_, err := f.Chunks().InsertMany(context.Background(), doc.ID, nil, []*model.Chunk{
		{Content: "broken", Embedding: "not-json"},
	})
	require.NoError(t, err)

	got, err := NewRetriever(f.Chunks(), nil).Search(context.Background(), []float32{1, 0}, 5, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].Content)
}

func TestRetrieverStoreFailure(t *testing.T) {
	r := NewRetriever(failingChunks{err: fmt.Errorf("db down")}, nil)
	_, err := r.Search(context.Background(), []float32{1}, 5, SearchFilter{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRetrieval.Code))
}
