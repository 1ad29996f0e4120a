package biz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/internal/model"
	"github.com/kart-io/bhasha/internal/pkg/rag/evaluator"
	"github.com/kart-io/bhasha/internal/rag/store"
	"github.com/kart-io/bhasha/internal/rag/store/storetest"
	"github.com/kart-io/bhasha/pkg/infra/pool"
)

const englishQuestion = "Who was Anupam's uncle?"

type askFixture struct {
	store     store.Factory
	embedding *fakeEmbedding
	chat      *fakeChat
	memory    *Memory
	orch      *Orchestrator
}

func newAskFixture(t *testing.T, cfg *OrchestratorConfig) *askFixture {
	t.Helper()

	f := storetest.NewFactory(t)
	embedding := newFakeEmbedding(3)
	embedding.vectors[englishQuestion] = unitVector(3, 0)
	chat := &fakeChat{answer: "Anupam's uncle was the head of the family and arranged the wedding."}

	embedder := NewEmbedder(staticFactory(embedding), newTestPool(t, pool.EmbeddingPool), &EmbedderConfig{Dimension: 3})
	memory := NewMemory(f, nil)
	evaluation := NewEvaluationService(f, evaluator.New(embedder), nil)
	orch := NewOrchestrator(embedder, NewRetriever(f.Chunks(), nil), memory, chat, evaluation,
		newTestPool(t, pool.GenerationPool), cfg)

	return &askFixture{store: f, embedding: embedding, chat: chat, memory: memory, orch: orch}
}

func TestAskGroundedThreeChunks(t *testing.T) {
	fx := newAskFixture(t, nil)
	seedDocument(t, fx.store, "owner", "Aparichita", "en",
		[]string{"Mama decided everything.", "The wedding was at Kalyani's house.", "Harish brought the proposal."},
		[][]float32{{0.6, 0.8, 0}, {0.5, 0, 0.8660254}, {0, 1, 0}})

	ans := fx.orch.Ask(context.Background(), &AskRequest{Question: englishQuestion})

	assert.Equal(t, ApproachRAG, ans.ApproachUsed)
	assert.Equal(t, "en", ans.Language)
	assert.Equal(t, 3, ans.ChunksRetrieved)
	require.Len(t, ans.Sources, 3)
	assert.Equal(t, "Mama decided everything.", ans.Sources[0].Content)
	assert.InDelta(t, 0.6, ans.Sources[0].Similarity, 1e-5)
	assert.Equal(t, fx.chat.answer, ans.Answer)

	// 0.6 + min(3*0.1, 0.3) + min(12/20, 1)*0.1
	assert.InDelta(t, 0.96, ans.Confidence, 1e-5)
	assert.GreaterOrEqual(t, ans.ResponseTime, 0.0)
	assert.Empty(t, ans.MessageID)

	prompt := fx.chat.lastPrompt()
	assert.Contains(t, prompt, "Source 1 (Similarity: 0.60, Document: Aparichita):\nMama decided everything.\n")
	assert.Contains(t, prompt, "Question: "+englishQuestion)
}

func TestAskRelevanceGate(t *testing.T) {
	tests := []struct {
		name     string
		vector   []float32
		approach Approach
	}{
		{"相似度 0.25 使用通用回答", []float32{0.25, 0.9682458, 0}, ApproachFallback},
		{"相似度 0.8 使用检索上下文", []float32{0.8, 0.6, 0}, ApproachRAG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newAskFixture(t, nil)
			seedDocument(t, fx.store, "owner", "doc", "en", []string{"only chunk"}, [][]float32{tt.vector})

			ans := fx.orch.Ask(context.Background(), &AskRequest{Question: englishQuestion})
			assert.Equal(t, tt.approach, ans.ApproachUsed)
			assert.Equal(t, 1, ans.ChunksRetrieved)

			if tt.approach == ApproachFallback {
				assert.Equal(t, 0.5, ans.Confidence)
				assert.Contains(t, fx.chat.lastPrompt(), "Important Instructions:")
				assert.NotContains(t, fx.chat.lastPrompt(), "only chunk")
			} else {
				assert.Contains(t, fx.chat.lastPrompt(), "only chunk")
			}
		})
	}
}

func TestAskWithoutChunksFallsBack(t *testing.T) {
	fx := newAskFixture(t, nil)

	ans := fx.orch.Ask(context.Background(), &AskRequest{Question: englishQuestion})
	assert.Equal(t, ApproachFallback, ans.ApproachUsed)
	assert.NotNil(t, ans.Sources)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, 0, ans.ChunksRetrieved)
}

func TestAskGenerationFailure(t *testing.T) {
	fx := newAskFixture(t, nil)
	fx.chat.err = errModelDown
	seedDocument(t, fx.store, "owner", "গল্প", "bn", []string{"অনুপমের মামা"}, [][]float32{{1, 0, 0}})
	fx.embedding.vectors["অনুপমের মামা কে ছিলেন?"] = unitVector(3, 0)
	chat, err := fx.memory.CreateSession(context.Background(), "owner", "অনুপমের মামা কে ছিলেন?")
	require.NoError(t, err)

	ans := fx.orch.Ask(context.Background(), &AskRequest{Question: "অনুপমের মামা কে ছিলেন?", ChatID: chat.ID})

	assert.Equal(t, ApproachErrorFallback, ans.ApproachUsed)
	assert.Equal(t, "bn", ans.Language)
	assert.Equal(t, 0.1, ans.Confidence)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, 0, ans.ChunksRetrieved)
	assert.True(t, strings.HasPrefix(ans.Answer, "দুঃখিত"))

	// 失败的问答不写入会话
	history, err := fx.memory.GetHistory(context.Background(), chat.ID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, history.Total)
}

func TestAskEmbeddingFailure(t *testing.T) {
	fx := newAskFixture(t, nil)
	fx.embedding.err = errModelDown

	ans := fx.orch.Ask(context.Background(), &AskRequest{Question: englishQuestion})
	assert.Equal(t, ApproachErrorFallback, ans.ApproachUsed)
	assert.Equal(t, "Sorry, I'm having trouble answering your question right now. Please try again.", ans.Answer)
}

func TestAskGenerationTimeout(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.GenerationTimeout = 50 * time.Millisecond
	fx := newAskFixture(t, cfg)
	fx.chat.block = true

	outcome := fx.orch.Resolve(context.Background(), &AskRequest{Question: englishQuestion}, "en")
	failed, ok := outcome.(Failed)
	require.True(t, ok)
	assert.Contains(t, failed.Reason.Error(), "timed out")
}

func TestAskPersistsConversation(t *testing.T) {
	fx := newAskFixture(t, nil)
	seedDocument(t, fx.store, "owner", "doc", "en", []string{"Mama decided everything."}, [][]float32{{0.9, 0.43588989, 0}})
	ctx := context.Background()
	chat, err := fx.memory.CreateSession(ctx, "owner", englishQuestion)
	require.NoError(t, err)

	first := fx.orch.Ask(ctx, &AskRequest{Question: englishQuestion, ChatID: chat.ID, OwnerID: "owner"})
	require.Equal(t, ApproachRAG, first.ApproachUsed)
	require.NotEmpty(t, first.MessageID)
	assert.Equal(t, chat.ID, first.ChatID)

	history, err := fx.memory.GetHistory(ctx, chat.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, model.RoleUser, history.Messages[0].Role)
	ai := history.Messages[1]
	assert.Equal(t, model.RoleAI, ai.Role)
	require.NotNil(t, ai.RAGMetadata)
	assert.Equal(t, "rag", ai.RAGMetadata.Approach)
	assert.Equal(t, 1, ai.RAGMetadata.ChunksUsed)
	require.NotNil(t, ai.GroundingScore)
	assert.InDelta(t, first.Confidence, *ai.GroundingScore, 1e-9)

	// 第二次提问时对话上下文进入提示词
	fx.orch.Ask(ctx, &AskRequest{Question: englishQuestion, ChatID: chat.ID, OwnerID: "owner"})
	assert.Contains(t, fx.chat.lastPrompt(), "AI: "+fx.chat.answer)

	// 后台评估写入评分
	require.Eventually(t, func() bool {
		ev, err := fx.store.Evaluations().Get(ctx, first.MessageID)
		return err == nil && ev.Groundedness != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGroundedConfidence(t *testing.T) {
	assert.Equal(t, 0.3, GroundedConfidence(nil, "anything"))

	chunks := []RetrievedChunk{{Similarity: 0.95}, {Similarity: 0.9}, {Similarity: 0.8}, {Similarity: 0.7}}
	assert.Equal(t, 1.0, GroundedConfidence(chunks, strings.Repeat("word ", 40)))

	one := []RetrievedChunk{{Similarity: 0.4}}
	assert.InDelta(t, 0.4+0.1+0.1*0.25, GroundedConfidence(one, "five words in this answer"), 1e-9)
}
