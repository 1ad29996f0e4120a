// Package huggingface 提供 HuggingFace Inference API 的 LLM 供应商实现。
// 默认嵌入模型为多语言 paraphrase-multilingual-MiniLM-L12-v2 (384 维)，覆盖孟加拉语与英语。
package huggingface

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/bhasha/pkg/llm"
	"github.com/kart-io/bhasha/pkg/utils/httpclient"
	"github.com/kart-io/bhasha/pkg/utils/json"
)

// ProviderName 供应商名称。
const ProviderName = "huggingface"

// DefaultEmbedModel 默认多语言嵌入模型。
const DefaultEmbedModel = "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"

func init() {
	llm.Register(ProviderName, NewProvider)
}

// Config HuggingFace 供应商配置。
type Config struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	APIKey string `json:"api_key" mapstructure:"api_key"`

	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`

	// WaitForModel 模型冷启动时等待加载，而不是立即返回 503。
	WaitForModel bool `json:"wait_for_model" mapstructure:"wait_for_model"`

	MaxNewTokens int `json:"max_new_tokens" mapstructure:"max_new_tokens"`

	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api-inference.huggingface.co",
		EmbedModel:   DefaultEmbedModel,
		ChatModel:    "mistralai/Mistral-7B-Instruct-v0.2",
		Timeout:      120 * time.Second,
		MaxRetries:   3,
		WaitForModel: true,
		MaxNewTokens: 1024,
		Temperature:  0.7,
	}
}

// Provider HuggingFace 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 HuggingFace 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = llm.ConfigString(configMap, "base_url", cfg.BaseURL)
	cfg.APIKey = llm.ConfigString(configMap, "api_key", "")
	cfg.EmbedModel = llm.ConfigString(configMap, "embed_model", cfg.EmbedModel)
	cfg.ChatModel = llm.ConfigString(configMap, "chat_model", cfg.ChatModel)
	cfg.Timeout = llm.ConfigDuration(configMap, "timeout", cfg.Timeout)
	cfg.MaxRetries = llm.ConfigInt(configMap, "max_retries", cfg.MaxRetries)
	cfg.WaitForModel = llm.ConfigBool(configMap, "wait_for_model", cfg.WaitForModel)
	cfg.MaxNewTokens = llm.ConfigInt(configMap, "max_new_tokens", cfg.MaxNewTokens)
	cfg.Temperature = llm.ConfigFloat(configMap, "temperature", cfg.Temperature)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("huggingface: api_key 是必需的")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 HuggingFace 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

type options struct {
	WaitForModel bool `json:"wait_for_model,omitempty"`
}

type embeddingRequest struct {
	Inputs  []string `json:"inputs"`
	Options *options `json:"options,omitempty"`
}

// Embed 调用 feature-extraction 管线生成向量。
// sentence-transformers 模型直接返回句向量；其他模型返回 token 向量时做平均池化。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingRequest{Inputs: texts}
	if p.config.WaitForModel {
		reqBody.Options = &options{WaitForModel: true}
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", p.config.BaseURL, p.config.EmbedModel)
	var raw json.RawMessage
	if err := p.client.PostJSON(ctx, url, p.headers(), reqBody, &raw); err != nil {
		return nil, fmt.Errorf("huggingface embed: %w", err)
	}

	embeddings, err := decodeEmbeddings(raw)
	if err != nil {
		return nil, fmt.Errorf("huggingface embed: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("huggingface embed: 期望 %d 个向量，实际返回 %d 个", len(texts), len(embeddings))
	}
	return embeddings, nil
}

func decodeEmbeddings(raw []byte) ([][]float32, error) {
	var embeddings [][]float32
	if err := json.Unmarshal(raw, &embeddings); err == nil {
		return embeddings, nil
	}

	var tokenEmbeddings [][][]float32
	if err := json.Unmarshal(raw, &tokenEmbeddings); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	embeddings = make([][]float32, len(tokenEmbeddings))
	for i, tokens := range tokenEmbeddings {
		if len(tokens) == 0 {
			continue
		}
		pooled := make([]float32, len(tokens[0]))
		for _, token := range tokens {
			for j, v := range token {
				if j < len(pooled) {
					pooled[j] += v
				}
			}
		}
		for j := range pooled {
			pooled[j] /= float32(len(tokens))
		}
		embeddings[i] = pooled
	}
	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

type generateRequest struct {
	Inputs     string          `json:"inputs"`
	Parameters *generateParams `json:"parameters,omitempty"`
	Options    *options        `json:"options,omitempty"`
}

type generateParams struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Chat 将多轮消息拼接为指令格式后生成。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return p.generate(ctx, formatMessages(messages))
}

// Generate 根据提示生成文本。
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	fullPrompt := prompt
	if systemPrompt != "" {
		fullPrompt = fmt.Sprintf("[INST] %s [/INST]\n\n%s", systemPrompt, prompt)
	}
	return p.generate(ctx, fullPrompt)
}

func (p *Provider) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Inputs: prompt,
		Parameters: &generateParams{
			MaxNewTokens: p.config.MaxNewTokens,
			Temperature:  p.config.Temperature,
		},
	}
	if p.config.WaitForModel {
		reqBody.Options = &options{WaitForModel: true}
	}

	url := fmt.Sprintf("%s/models/%s", p.config.BaseURL, p.config.ChatModel)
	var results []generateResponse
	if err := p.client.PostJSON(ctx, url, p.headers(), reqBody, &results); err != nil {
		return "", fmt.Errorf("huggingface generate: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("huggingface generate: 未返回响应内容")
	}
	return results[0].GeneratedText, nil
}

func formatMessages(messages []llm.Message) string {
	var out string
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem, llm.RoleUser:
			out += fmt.Sprintf("[INST] %s [/INST]\n", msg.Content)
		default:
			out += msg.Content + "\n"
		}
	}
	return out
}

func (p *Provider) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.config.APIKey)
	return h
}
