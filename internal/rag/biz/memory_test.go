package biz

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/internal/rag/store/storetest"
	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/utils/json"
)

func TestGenerateTitle(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"短问题保持原样", "অনুপমের মামা কে ছিলেন?", "অনুপমের মামা কে ছিলেন?"},
		{"合并空白", "  hello   world \n", "hello world"},
		{"超过六个词", "What is the name of Anupam's uncle in the story?", "What is the name of Anupam's..."},
		{"超过五十个字符", strings.Repeat("a", 60), strings.Repeat("a", 47) + "..."},
		{"空问题", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateTitle(tt.query))
		})
	}
}

func newTestMemory(t *testing.T) (*Memory, *model.Chat) {
	t.Helper()
	m := NewMemory(storetest.NewFactory(t), nil)
	chat, err := m.CreateSession(context.Background(), "owner-1", "Who was Anupam's uncle?")
	require.NoError(t, err)
	return m, chat
}

func TestShortTermEviction(t *testing.T) {
	m, chat := newTestMemory(t)
	ctx := context.Background()

	for i := 1; i <= 11; i++ {
		require.NoError(t, m.AppendShortTerm(ctx, chat.ID, Turn{
			ID:      fmt.Sprintf("turn-%d", i),
			Role:    model.RoleUser,
			Content: fmt.Sprintf("message %d", i),
		}))
	}

	turns, err := m.GetShortTerm(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, turns, 10)
	assert.Equal(t, "turn-2", turns[0].ID)
	assert.Equal(t, "turn-11", turns[9].ID)
}

func TestShortTermReplacesSameID(t *testing.T) {
	m, chat := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.AppendShortTerm(ctx, chat.ID, Turn{ID: "a", Content: "first"}))
	require.NoError(t, m.AppendShortTerm(ctx, chat.ID, Turn{ID: "b", Content: "second"}))
	require.NoError(t, m.AppendShortTerm(ctx, chat.ID, Turn{ID: "a", Content: "edited"}))

	turns, err := m.GetShortTerm(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "edited", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)
}

func TestShortTermInvalidJSON(t *testing.T) {
	m, chat := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.store.Chats().UpdateShortTermMemory(ctx, chat.ID, "{not json"))
	turns, err := m.GetShortTerm(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)

	require.NoError(t, m.AppendShortTerm(ctx, chat.ID, Turn{ID: "x"}))
	require.NoError(t, m.ClearShortTerm(ctx, chat.ID))
	turns, err = m.GetShortTerm(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestShortTermUnknownChat(t *testing.T) {
	m, _ := newTestMemory(t)
	_, err := m.GetShortTerm(context.Background(), "missing")
	assert.True(t, errors.IsCode(err, errors.ErrChatNotFound.Code))
}

func TestStoreMessageAndHistory(t *testing.T) {
	m, chat := newTestMemory(t)
	ctx := context.Background()
	doc := seedDocument(t, m.store, "owner-1", "story", "bn", []string{"content"}, [][]float32{{1}})

	_, err := m.StoreMessage(ctx, chat.ID, "question", model.RoleUser, WithDocumentIDs(doc.ID))
	require.NoError(t, err)
	answer, err := m.StoreMessage(ctx, chat.ID, "answer", model.RoleAI,
		WithGroundingScore(0.8),
		WithResponseTime(1.5),
		WithRAGMetadata(&model.RAGMetadata{Approach: "rag", ChunksUsed: 1}),
		WithRetrievedChunks([]RetrievedChunk{{ChunkID: "c1", Content: "content", Similarity: 0.9}}),
	)
	require.NoError(t, err)
	require.NotNil(t, answer.RetrievedChunks)

	var chunks []RetrievedChunk
	require.NoError(t, json.UnmarshalString(*answer.RetrievedChunks, &chunks))
	assert.Equal(t, "c1", chunks[0].ChunkID)

	history, err := m.GetHistory(ctx, chat.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.EqualValues(t, 2, history.Total)
	assert.False(t, history.HasMore)
	assert.Equal(t, "question", history.Messages[0].Content)
	assert.Equal(t, "answer", history.Messages[1].Content)
	require.Len(t, history.Messages[0].Documents, 1)
	assert.Equal(t, "story", history.Messages[0].Documents[0].Title)

	page, err := m.GetHistory(ctx, chat.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "answer", page.Messages[0].Content)
	assert.True(t, page.HasMore)

	turns, err := m.GetShortTerm(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, answer.ID, turns[1].ID)
	require.NotNil(t, turns[1].GroundingScore)
	assert.InDelta(t, 0.8, *turns[1].GroundingScore, 1e-9)
}

func TestBlendContext(t *testing.T) {
	m, chat := newTestMemory(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := m.StoreMessage(ctx, chat.ID, fmt.Sprintf("m%d", i), model.RoleUser)
		require.NoError(t, err)
	}

	blended, err := m.BlendContext(ctx, chat.ID, "next")
	require.NoError(t, err)
	assert.Equal(t, "next", blended.CurrentQuery)

	// 4 条短期 + 4 条长期，未超过上限
	require.Len(t, blended.RecentMessages, 8)
	assert.Equal(t, "m0", blended.RecentMessages[0].Content)
	assert.Equal(t, "m3", blended.RecentMessages[3].Content)
	assert.Equal(t, "m0", blended.RecentMessages[4].Content)
	assert.Equal(t, "m3", blended.RecentMessages[7].Content)

	for i := 4; i < 8; i++ {
		_, err := m.StoreMessage(ctx, chat.ID, fmt.Sprintf("m%d", i), model.RoleUser)
		require.NoError(t, err)
	}
	blended, err = m.BlendContext(ctx, chat.ID, "next")
	require.NoError(t, err)
	require.Len(t, blended.RecentMessages, 10)
	// 末尾是最近 5 条长期消息
	assert.Equal(t, "m3", blended.RecentMessages[5].Content)
	assert.Equal(t, "m7", blended.RecentMessages[9].Content)
}

func TestChatOwnership(t *testing.T) {
	m, chat := newTestMemory(t)
	ctx := context.Background()

	list, err := m.ListChats(ctx, "owner-1", 20, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, list.Total)
	assert.Equal(t, "Who was Anupam's uncle?", list.Chats[0].Name)

	err = m.DeleteChat(ctx, "someone-else", chat.ID)
	assert.True(t, errors.IsCode(err, errors.ErrChatNotFound.Code))

	require.NoError(t, m.DeleteChat(ctx, "owner-1", chat.ID))
	_, err = m.GetChat(ctx, "owner-1", chat.ID)
	assert.True(t, errors.IsCode(err, errors.ErrChatNotFound.Code))
}
