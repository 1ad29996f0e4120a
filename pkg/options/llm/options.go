// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/bhasha/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// name 是 flag 前缀，embedding 或 chat。
	name string

	// Provider 供应商名称（ollama, openai, gemini, huggingface）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，空表示使用供应商默认值。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥。为空时从 <NAME>_API_KEY 环境变量读取。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Dimensions 请求的向量维度，仅 embedding 有效，0 表示模型默认值。
	Dimensions int `json:"dimensions" mapstructure:"dimensions"`

	// Temperature 生成温度，0 表示使用服务端默认值。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens 最大生成 token 数，0 表示不限制。
	MaxTokens int `json:"max-tokens" mapstructure:"max-tokens"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
// 默认使用本地 Ollama 的多语言模型，输出 384 维向量。
func NewEmbeddingOptions() *ProviderOptions {
	return &ProviderOptions{
		name:       "embedding",
		Provider:   "ollama",
		Model:      "paraphrase-multilingual",
		Timeout:    60 * time.Second,
		MaxRetries: 3,
	}
}

// NewChatOptions 创建默认 Chat 供应商配置。
func NewChatOptions() *ProviderOptions {
	return &ProviderOptions{
		name:        "chat",
		Provider:    "gemini",
		Model:       "gemini-2.0-flash",
		Temperature: 0.3,
		MaxTokens:   1024,
		Timeout:     60 * time.Second,
		MaxRetries:  2,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	m := map[string]any{
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"dimensions":   o.Dimensions,
		"temperature":  o.Temperature,
		"max_tokens":   o.MaxTokens,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
	// 空值不下发，保留供应商自己的默认地址
	if o.BaseURL != "" {
		m["base_url"] = o.BaseURL
	}
	return m
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + o.name + "."
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Provider name (ollama, openai, gemini, huggingface).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "API base URL; empty uses the provider default.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "API key (prefer the environment variable).")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model name.")
	fs.IntVar(&o.Dimensions, p+"dimensions", o.Dimensions, "Requested vector dimensions, 0 for the model default.")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature.")
	fs.IntVar(&o.MaxTokens, p+"max-tokens", o.MaxTokens, "Maximum tokens to generate.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Maximum number of retries.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "Organization ID (openai, optional).")
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("%s.provider is required", o.name))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required", o.name))
	}
	switch o.Provider {
	case "openai", "gemini", "huggingface":
		if o.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api-key is required for the %s provider", o.name, o.Provider))
		}
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must be positive", o.name))
	}
	return errs
}

// Complete 从环境变量补全 API key，例如 GEMINI_API_KEY。
func (o *ProviderOptions) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv(envKey(o.Provider))
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return nil
}

func envKey(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	case "huggingface":
		return "HF_API_TOKEN"
	default:
		return ""
	}
}

// CacheOptions 定义 Embedding 向量缓存配置（需要启用 Redis）。
type CacheOptions struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	TTL       time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `json:"key-prefix" mapstructure:"key-prefix"`
}

// NewCacheOptions 创建默认缓存配置。
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		TTL:       24 * time.Hour,
		KeyPrefix: "bhasha:embedding:",
	}
}

// AddFlags adds flags for the embedding cache.
func (o *CacheOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "embedding-cache."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Cache embeddings in Redis.")
	fs.DurationVar(&o.TTL, p+"ttl", o.TTL, "Time to live of cached embeddings.")
	fs.StringVar(&o.KeyPrefix, p+"key-prefix", o.KeyPrefix, "Redis key prefix of cached embeddings.")
}

// Validate validates the cache options.
func (o *CacheOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	if o.TTL <= 0 {
		return []error{fmt.Errorf("embedding-cache.ttl must be positive")}
	}
	return nil
}
