package objectstore

import (
	"context"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := NewLocal(fs, "/v1/files/")

	p, err := store.Upload(ctx, DocumentPath("owner", "01F", "story.txt"), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "documents/owner/01F_story.txt", p)
	assert.Equal(t, "/v1/files/documents/owner/01F_story.txt", store.PublicURL(p))

	rc, err := store.Open(ctx, p)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Remove(ctx, p, "documents/owner/missing.txt"))
	_, err = store.Open(ctx, p)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClean(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"普通路径", "documents/a/b.txt", "documents/a/b.txt", false},
		{"去掉前导斜杠", "/documents/a.txt", "documents/a.txt", false},
		{"不能逃逸根目录", "../../etc/passwd", "etc/passwd", false},
		{"空路径", "  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentPathStripsDirectories(t *testing.T) {
	assert.Equal(t, "documents/u1/id_x.pdf", DocumentPath("u1", "id", "../../x.pdf"))
}
