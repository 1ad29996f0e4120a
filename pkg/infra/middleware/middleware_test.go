package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/middleware/common"
	"github.com/kart-io/bhasha/pkg/infra/tracing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type errBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) errBody {
	t.Helper()
	var body errBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c.Request.Context()))
	})

	t.Run("生成新的请求 ID", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
		id := w.Header().Get(HeaderXRequestID)
		assert.Len(t, id, 26)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("复用请求头中的 ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderXRequestID, "abc-123")
		w := serve(r, req)
		assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
		assert.Equal(t, "abc-123", w.Body.String())
	})
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.ErrPanic.Code, decodeErr(t, w).Code)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(TimeoutWithConfig(TimeoutConfig{Timeout: 50 * time.Millisecond, SkipPaths: []string{"/skip"}}))
	handler := func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		if ok {
			c.String(http.StatusOK, "deadline")
			return
		}
		c.String(http.StatusOK, "none")
	}
	r.GET("/work", handler)
	r.GET("/skip", handler)

	assert.Equal(t, "deadline", serve(r, httptest.NewRequest(http.MethodGet, "/work", nil)).Body.String())
	assert.Equal(t, "none", serve(r, httptest.NewRequest(http.MethodGet, "/skip", nil)).Body.String())
}

func TestMemoryRateLimiter(t *testing.T) {
	l := NewMemoryRateLimiter(3, time.Minute)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "owner:a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := l.Allow(ctx, "owner:a")
	assert.False(t, ok)

	// 不同 key 互不影响
	ok, _ = l.Allow(ctx, "owner:b")
	assert.True(t, ok)

	require.NoError(t, l.Reset(ctx, "owner:a"))
	ok, _ = l.Allow(ctx, "owner:a")
	assert.True(t, ok)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(common.WithOwnerID(c.Request.Context(), c.GetHeader("X-Owner")))
	})
	r.Use(RateLimitWithConfig(RateLimitConfig{Limit: 2, Window: time.Minute}))
	r.GET("/chat", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(owner string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/chat", nil)
		req.Header.Set("X-Owner", owner)
		return serve(r, req)
	}

	assert.Equal(t, http.StatusOK, get("alice").Code)
	assert.Equal(t, http.StatusOK, get("alice").Code)

	w := get("alice")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, errors.ErrTooManyRequests.Code, decodeErr(t, w).Code)

	assert.Equal(t, http.StatusOK, get("bob").Code)
}

func TestOwnerOrIPKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "ip:10.0.0.1", OwnerOrIPKey(c))

	c.Request = c.Request.WithContext(common.WithOwnerID(c.Request.Context(), "u1"))
	assert.Equal(t, "owner:u1", OwnerOrIPKey(c))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORSWithConfig(CORSConfig{AllowOrigins: []string{"http://localhost:3000"}, AllowCredentials: true}))
	r.GET("/v1/chat", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	assert.Panics(t, func() { CORSWithConfig(CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true}) })
}

func TestTracing(t *testing.T) {
	opts := tracing.NewOptions()
	opts.Enabled = true
	opts.ExporterType = tracing.ExporterNoop
	opts.SamplerType = tracing.SamplerAlwaysOn
	provider, err := tracing.NewProvider(opts)
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	r := gin.New()
	r.Use(RequestID(), Tracing())
	r.GET("/v1/chat/:id", func(c *gin.Context) {
		c.String(http.StatusOK, tracing.TraceIDFromContext(c.Request.Context()))
	})

	t.Run("延续上游 trace", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/chat/abc", nil)
		req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
		w := serve(r, req)
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Body.String())
	})

	t.Run("新建 trace", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/v1/chat/abc", nil))
		assert.Len(t, w.Body.String(), 32)
	})
}

func TestVersion(t *testing.T) {
	tests := []struct {
		name  string
		brief bool
	}{
		{"完整构建信息", false},
		{"只返回版本号", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/version", Version(tt.brief))
			w := serve(r, httptest.NewRequest(http.MethodGet, "/version", nil))
			require.Equal(t, http.StatusOK, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body, "version")
			if tt.brief {
				assert.Len(t, body, 1)
			} else {
				assert.Contains(t, body, "go")
			}
		})
	}
}
