package biz

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/internal/rag/store"
	"github.com/kart-io/bhasha/pkg/utils/json"
)

// seedDocument 写入一篇文档及其文档块，vectors 与 contents 一一对应。
func seedDocument(t *testing.T, f store.Factory, owner, title, language string, contents []string, vectors [][]float32) *model.Document {
	t.Helper()
	ctx := context.Background()

	doc := &model.Document{
		OwnerID:  owner,
		Title:    title,
		Language: language,
		Content:  strings.Join(contents, " "),
	}
	require.NoError(t, f.Documents().Create(ctx, doc))

	file := &model.File{FileName: title + ".txt", Type: "txt", DocumentID: doc.ID}
	require.NoError(t, f.Files().Create(ctx, file))

	chunks := make([]*model.Chunk, len(contents))
	for i, content := range contents {
		emb, err := json.MarshalString(vectors[i])
		require.NoError(t, err)
		chunks[i] = &model.Chunk{
			Content:   content,
			Embedding: emb,
			Metadata:  model.JSONMap{"language": language},
		}
	}
	_, err := f.Chunks().InsertMany(ctx, doc.ID, &file.ID, chunks)
	require.NoError(t, err)
	return doc
}

// failingChunks 查询总是失败的文档块存储。
type failingChunks struct {
	store.ChunkStore
	err error
}

func (f failingChunks) FindByFilter(context.Context, store.ChunkFilter) ([]*model.Chunk, error) {
	return nil, f.err
}
