package biz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kart-io/bhasha/pkg/llm"
)

// fakeEmbedding 按规则返回向量的嵌入模型。
type fakeEmbedding struct {
	dim     int
	vectors map[string][]float32
	err     error
	calls   atomic.Int64
	texts   atomic.Int64
}

func newFakeEmbedding(dim int) *fakeEmbedding {
	return &fakeEmbedding{dim: dim, vectors: map[string][]float32{}}
}

func (f *fakeEmbedding) vectorFor(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	// 未登记的文本使用最后一维的单位向量
	v := make([]float32, f.dim)
	v[f.dim-1] = 1
	return v
}

func (f *fakeEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	f.texts.Add(int64(len(texts)))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorFor(t)
	}
	return out, nil
}

func (f *fakeEmbedding) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedding) Name() string { return "fake-embedding" }

func staticFactory(p llm.EmbeddingProvider) EmbedderFactory {
	return func() (llm.EmbeddingProvider, error) { return p, nil }
}

// fakeChat 记录提示词并返回固定回答的生成模型。
type fakeChat struct {
	mu      sync.Mutex
	answer  string
	err     error
	block   bool
	prompts []string
}

func (f *fakeChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	var prompt string
	for _, m := range messages {
		if m.Role == llm.RoleUser {
			prompt = m.Content
		}
	}
	return f.Generate(ctx, prompt, "")
}

func (f *fakeChat) Generate(ctx context.Context, prompt, _ string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeChat) Name() string { return "fake-chat" }

func (f *fakeChat) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

var errModelDown = errors.New("model down")

// unitVector 返回第 i 维为 1 的向量。
func unitVector(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}
