// Package gemini 提供 Google Gemini API 的 LLM 供应商实现。
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/bhasha/pkg/llm"
	"github.com/kart-io/bhasha/pkg/utils/httpclient"
)

// ProviderName 供应商名称。
const ProviderName = "gemini"

func init() {
	llm.Register(ProviderName, NewProvider)
}

// Config Gemini 供应商配置。
type Config struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	APIKey string `json:"api_key" mapstructure:"api_key"`

	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// Dimensions 输出向量维度，0 表示模型默认。
	Dimensions int `json:"dimensions" mapstructure:"dimensions"`

	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`

	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
		EmbedModel: "text-embedding-004",
		ChatModel:  "gemini-1.5-flash",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider Gemini 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 Gemini 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = llm.ConfigString(configMap, "base_url", cfg.BaseURL)
	cfg.APIKey = llm.ConfigString(configMap, "api_key", "")
	cfg.EmbedModel = llm.ConfigString(configMap, "embed_model", cfg.EmbedModel)
	cfg.ChatModel = llm.ConfigString(configMap, "chat_model", cfg.ChatModel)
	cfg.Dimensions = llm.ConfigInt(configMap, "dimensions", 0)
	cfg.Timeout = llm.ConfigDuration(configMap, "timeout", cfg.Timeout)
	cfg.MaxRetries = llm.ConfigInt(configMap, "max_retries", cfg.MaxRetries)
	cfg.Temperature = llm.ConfigFloat(configMap, "temperature", 0)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api_key 是必需的")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 Gemini 供应商。
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

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type embedContentRequest struct {
	Model                string  `json:"model"`
	Content              content `json:"content"`
	OutputDimensionality int     `json:"outputDimensionality,omitempty"`
}

type batchEmbedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// Embed 调用 batchEmbedContents 批量生成向量。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := "models/" + p.config.EmbedModel
	reqBody := batchEmbedRequest{Requests: make([]embedContentRequest, len(texts))}
	for i, text := range texts {
		reqBody.Requests[i] = embedContentRequest{
			Model:                model,
			Content:              content{Parts: []part{{Text: text}}},
			OutputDimensionality: p.config.Dimensions,
		}
	}

	var resp batchEmbedResponse
	url := fmt.Sprintf("%s/%s:batchEmbedContents", p.config.BaseURL, model)
	if err := p.client.PostJSON(ctx, url, p.headers(), reqBody, &resp); err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed: 期望 %d 个向量，实际返回 %d 个", len(texts), len(resp.Embeddings))
	}

	embeddings := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		embeddings[i] = e.Values
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

type generationConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Chat 进行多轮对话，system 消息合并为 systemInstruction。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	reqBody := generateRequest{GenerationConfig: generationConfig{Temperature: p.config.Temperature}}

	var system []string
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			reqBody.Contents = append(reqBody.Contents, content{Role: "model", Parts: []part{{Text: msg.Content}}})
		default:
			reqBody.Contents = append(reqBody.Contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		}
	}
	if len(system) > 0 {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: strings.Join(system, "\n")}}}
	}

	var resp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", p.config.BaseURL, p.config.ChatModel)
	if err := p.client.PostJSON(ctx, url, p.headers(), reqBody, &resp); err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini generate: 未返回响应内容")
	}

	var sb strings.Builder
	for _, pt := range resp.Candidates[0].Content.Parts {
		sb.WriteString(pt.Text)
	}
	return sb.String(), nil
}

// Generate 根据提示生成文本。
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	messages := make([]llm.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
	return p.Chat(ctx, messages)
}

// headers 使用 x-goog-api-key 头传递密钥，避免密钥出现在 URL 与访问日志中。
func (p *Provider) headers() http.Header {
	h := http.Header{}
	h.Set("x-goog-api-key", p.config.APIKey)
	return h
}
