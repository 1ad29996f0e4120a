package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/middleware/common"
	jwtopts "github.com/kart-io/bhasha/pkg/options/jwt"
	"github.com/kart-io/bhasha/pkg/security/auth/jwt"
)

const testKey = "test-secret-key-at-least-64-chars-long-for-security-purposes!!!!"

func newTestJWT(t *testing.T) *jwt.JWT {
	t.Helper()
	opts := jwtopts.NewOptions()
	opts.Key = testKey
	j, err := jwt.New(opts)
	require.NoError(t, err)
	return j
}

func identityRouter(cfg AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(Auth(cfg))
	r.GET("/v1/me", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.String(http.StatusOK, common.GetOwnerID(ctx)+"|"+strings.Join(common.GetRoles(ctx), ","))
	})
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestAuth(t *testing.T) {
	j := newTestJWT(t)
	token, err := j.Sign("user-1", "admin")
	require.NoError(t, err)

	r := identityRouter(AuthConfig{Verifier: j, SkipPaths: []string{"/healthz"}})

	tests := []struct {
		name     string
		header   string
		cookie   string
		wantCode int
		wantErr  int
		wantBody string
	}{
		{name: "Bearer 头", header: "Bearer " + token, wantCode: http.StatusOK, wantBody: "user-1|admin"},
		{name: "小写 scheme", header: "bearer " + token, wantCode: http.StatusOK, wantBody: "user-1|admin"},
		{name: "cookie 带前缀", cookie: "Bearer " + token, wantCode: http.StatusOK, wantBody: "user-1|admin"},
		{name: "cookie 不带前缀", cookie: token, wantCode: http.StatusOK, wantBody: "user-1|admin"},
		{name: "缺少令牌", wantCode: http.StatusUnauthorized, wantErr: errors.ErrUnauthorized.Code},
		{name: "无效令牌", header: "Bearer garbage", wantCode: http.StatusUnauthorized, wantErr: errors.ErrInvalidToken.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			w := serve(r, req)
			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != 0 {
				assert.Equal(t, tt.wantErr, decodeErr(t, w).Code)
				return
			}
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}

	t.Run("跳过路径", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthDisabled(t *testing.T) {
	r := identityRouter(AuthConfig{Disabled: true, DefaultOwner: "local", DefaultRoles: []string{"admin"}})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "local|admin", w.Body.String())
}

type fakeEnforcer map[string]bool

func (f fakeEnforcer) Enforce(rvals ...interface{}) (bool, error) {
	return f[rvals[0].(string)+" "+rvals[2].(string)+" "+rvals[1].(string)], nil
}

func TestAuthorize(t *testing.T) {
	enforcer := fakeEnforcer{"admin POST /v1/system/initialize": true}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := common.WithOwnerID(c.Request.Context(), c.GetHeader("X-Owner"))
		if roles := c.GetHeader("X-Roles"); roles != "" {
			ctx = common.WithRoles(ctx, strings.Split(roles, ","))
		}
		c.Request = c.Request.WithContext(ctx)
	})
	r.POST("/v1/system/initialize", Authorize(enforcer), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name     string
		owner    string
		roles    string
		wantCode int
	}{
		{name: "管理员放行", owner: "u1", roles: "user,admin", wantCode: http.StatusOK},
		{name: "普通用户拒绝", owner: "u2", roles: "user", wantCode: http.StatusForbidden},
		{name: "未认证", wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/system/initialize", nil)
			req.Header.Set("X-Owner", tt.owner)
			req.Header.Set("X-Roles", tt.roles)
			assert.Equal(t, tt.wantCode, serve(r, req).Code)
		})
	}
}
