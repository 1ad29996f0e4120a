package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/pkg/llm"
	"github.com/kart-io/bhasha/pkg/utils/httpclient"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
}

func TestCircuitBreakerStates(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	assert.Error(t, cb.Execute(func() error { return boom }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Execute(func() error { return boom }))
	assert.Equal(t, StateOpen, cb.State())

	// 打开状态直接拒绝
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	// 超时后半开，探测成功则关闭
	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Second, HalfOpenMaxCalls: 1})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errors.New("x") })
	now = now.Add(2 * time.Second)
	_ = cb.Execute(func() error { return errors.New("x") })
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	_ = cb.Execute(func() error { return &httpclient.StatusError{StatusCode: http.StatusBadRequest} })
	assert.Equal(t, StateClosed, cb.State())
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"取消", context.Canceled, false},
		{"熔断", ErrCircuitOpen, false},
		{"400", &httpclient.StatusError{StatusCode: 400}, false},
		{"429", &httpclient.StatusError{StatusCode: 429}, true},
		{"503", &httpclient.StatusError{StatusCode: 503}, true},
		{"网络错误", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestRetry(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = Retry(context.Background(), fastRetry(3), func() error {
		attempts++
		return &httpclient.StatusError{StatusCode: 401}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

type flakyChat struct{ calls int }

func (f *flakyChat) Chat(context.Context, []llm.Message) (string, error) { return "", nil }
func (f *flakyChat) Generate(context.Context, string, string) (string, error) {
	f.calls++
	if f.calls == 1 {
		return "", &httpclient.StatusError{StatusCode: 502}
	}
	return "ok", nil
}
func (f *flakyChat) Name() string { return "flaky" }

func TestWrapChatRetries(t *testing.T) {
	inner := &flakyChat{}
	p := WrapChat(inner, fastRetry(2), nil)

	got, err := p.Generate(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "flaky", p.Name())
	assert.Equal(t, StateClosed, p.Breaker().State())
}

func TestSingleAttemptKeepsError(t *testing.T) {
	boom := &httpclient.StatusError{StatusCode: 503}
	calls := 0
	err := Retry(context.Background(), &RetryConfig{MaxAttempts: 1}, func() error {
		calls++
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}
