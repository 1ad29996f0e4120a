// Package resilience 为 LLM 供应商提供退避重试与熔断保护。
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/pkg/llm"
	"github.com/kart-io/bhasha/pkg/utils/httpclient"
)

// RetryConfig 退避重试配置。
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable 判断错误是否值得重试，nil 时使用 IsRetryableError。
	Retryable func(error) bool
}

// DefaultRetryConfig 返回默认重试配置。
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// CircuitBreakerConfig 熔断器配置。
type CircuitBreakerConfig struct {
	// MaxFailures 连续失败多少次后打开熔断器。
	MaxFailures int
	// Timeout 打开状态持续多久后进入半开。
	Timeout time.Duration
	// HalfOpenMaxCalls 半开状态允许的探测调用数。
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig 返回默认熔断器配置。
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      5,
		Timeout:          60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// State 熔断器状态。
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 熔断器打开时返回。
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker 简单的三态熔断器。
type CircuitBreaker struct {
	name   string
	config *CircuitBreakerConfig
	now    func() time.Time

	mu                sync.Mutex
	state             State
	failures          int
	lastFailure       time.Time
	halfOpenCalls     int
	halfOpenSuccesses int
}

// NewCircuitBreaker 创建熔断器，name 仅用于日志。
func NewCircuitBreaker(name string, config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{name: name, config: config, now: time.Now}
}

// Execute 在熔断保护下执行 fn。
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) > cb.config.Timeout {
			logger.Infow("circuit breaker half-open", "breaker", cb.name)
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 1
			cb.halfOpenSuccesses = 0
			return nil
		}
		return ErrCircuitOpen
	default:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return ErrCircuitOpen
		}
		cb.halfOpenCalls++
		return nil
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// 调用方取消不计入失败
	if err != nil && (errors.Is(err, context.Canceled) || !countsAsFailure(err)) {
		err = nil
	}

	if err == nil {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.halfOpenSuccesses++
			if cb.halfOpenSuccesses >= cb.halfOpenCalls {
				logger.Infow("circuit breaker closed", "breaker", cb.name)
				cb.state = StateClosed
				cb.failures = 0
			}
		}
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			logger.Warnw("circuit breaker opened", "breaker", cb.name, "failures", cb.failures)
			cb.state = StateOpen
		}
	case StateHalfOpen:
		logger.Warnw("circuit breaker re-opened after half-open failure", "breaker", cb.name)
		cb.state = StateOpen
	}
}

// State 返回当前状态。
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset 重置为关闭状态。
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCalls = 0
	cb.halfOpenSuccesses = 0
}

// countsAsFailure 4xx 属于调用方错误，不应触发熔断。
func countsAsFailure(err error) bool {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// IsRetryableError 判断错误是否可重试：超时与 5xx/429 可重试，取消、熔断与其他 4xx 不重试。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Retry 以指数退避重试 fn。
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 1 {
		return fn()
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}

	delay := config.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		logger.Debugw("retrying llm call", "attempt", attempt, "delay", delay, "error", lastErr.Error())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return fmt.Errorf("max retry attempts (%d) reached: %w", config.MaxAttempts, lastErr)
}

// EmbeddingProvider 带重试与熔断的 Embedding 供应商包装。
type EmbeddingProvider struct {
	provider llm.EmbeddingProvider
	retry    *RetryConfig
	breaker  *CircuitBreaker
}

// WrapEmbedding 包装 Embedding 供应商。
func WrapEmbedding(p llm.EmbeddingProvider, retry *RetryConfig, cb *CircuitBreakerConfig) *EmbeddingProvider {
	return &EmbeddingProvider{
		provider: p,
		retry:    retry,
		breaker:  NewCircuitBreaker("embedding:"+p.Name(), cb),
	}
}

// Embed 实现 llm.EmbeddingProvider。
func (r *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := Retry(ctx, r.retry, func() error {
		return r.breaker.Execute(func() error {
			var err error
			out, err = r.provider.Embed(ctx, texts)
			return err
		})
	})
	return out, err
}

// EmbedSingle 实现 llm.EmbeddingProvider。
func (r *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := Retry(ctx, r.retry, func() error {
		return r.breaker.Execute(func() error {
			var err error
			out, err = r.provider.EmbedSingle(ctx, text)
			return err
		})
	})
	return out, err
}

// Name 返回底层供应商名称。
func (r *EmbeddingProvider) Name() string { return r.provider.Name() }

// Breaker 返回熔断器。
func (r *EmbeddingProvider) Breaker() *CircuitBreaker { return r.breaker }

// ChatProvider 带重试与熔断的 Chat 供应商包装。
type ChatProvider struct {
	provider llm.ChatProvider
	retry    *RetryConfig
	breaker  *CircuitBreaker
}

// WrapChat 包装 Chat 供应商。
func WrapChat(p llm.ChatProvider, retry *RetryConfig, cb *CircuitBreakerConfig) *ChatProvider {
	return &ChatProvider{
		provider: p,
		retry:    retry,
		breaker:  NewCircuitBreaker("chat:"+p.Name(), cb),
	}
}

// Chat 实现 llm.ChatProvider。
func (r *ChatProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	var out string
	err := Retry(ctx, r.retry, func() error {
		return r.breaker.Execute(func() error {
			var err error
			out, err = r.provider.Chat(ctx, messages)
			return err
		})
	})
	return out, err
}

// Generate 实现 llm.ChatProvider。
func (r *ChatProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	var out string
	err := Retry(ctx, r.retry, func() error {
		return r.breaker.Execute(func() error {
			var err error
			out, err = r.provider.Generate(ctx, prompt, systemPrompt)
			return err
		})
	})
	return out, err
}

// Name 返回底层供应商名称。
func (r *ChatProvider) Name() string { return r.provider.Name() }

// Breaker 返回熔断器。
func (r *ChatProvider) Breaker() *CircuitBreaker { return r.breaker }
