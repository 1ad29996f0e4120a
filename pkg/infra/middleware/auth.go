package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/middleware/common"
	"github.com/kart-io/bhasha/pkg/security/auth/jwt"
	"github.com/kart-io/bhasha/pkg/utils/response"
)

// TokenVerifier verifies a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}

// AuthConfig defines the config for Auth middleware.
type AuthConfig struct {
	// Verifier checks tokens. Required unless Disabled.
	Verifier TokenVerifier

	// Disabled skips token checks; every request acts as DefaultOwner.
	Disabled bool

	// DefaultOwner is the owner id used while Disabled.
	DefaultOwner string

	// DefaultRoles are granted to DefaultOwner while Disabled.
	DefaultRoles []string

	// AuthScheme is the Authorization header scheme.
	// Default: "Bearer"
	AuthScheme string

	// CookieName is consulted when the header is absent.
	// The cookie value may carry the scheme prefix.
	// Default: "access_token"
	CookieName string

	// SkipPaths are served without authentication.
	SkipPaths []string
}

// Auth returns a middleware that authenticates requests with cfg.
// 认证成功后 owner id 与 roles 写入请求 context。
func Auth(cfg AuthConfig) gin.HandlerFunc {
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "access_token"
	}
	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skipPaths[p] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		if cfg.Disabled {
			setIdentity(c, cfg.DefaultOwner, cfg.DefaultRoles)
			c.Next()
			return
		}

		if cfg.Verifier == nil {
			response.Fail(c, errors.ErrInternal.WithMessage("authenticator not configured"))
			return
		}

		token := extractToken(c, cfg.AuthScheme, cfg.CookieName)
		if token == "" {
			response.Fail(c, errors.ErrUnauthorized.WithMessage("missing authentication token"))
			return
		}

		claims, err := cfg.Verifier.Verify(token)
		if err != nil {
			logAuthFailure(c, token, err)
			response.Fail(c, err)
			return
		}

		setIdentity(c, claims.Subject, claims.Roles)
		c.Next()
	}
}

func setIdentity(c *gin.Context, owner string, roles []string) {
	ctx := common.WithOwnerID(c.Request.Context(), owner)
	ctx = common.WithRoles(ctx, roles)
	c.Request = c.Request.WithContext(ctx)
}

// extractToken 优先读取 Authorization 头，其次读取 cookie。
func extractToken(c *gin.Context, scheme, cookieName string) string {
	if token := stripScheme(c.GetHeader("Authorization"), scheme); token != "" {
		return token
	}
	if cookie, err := c.Request.Cookie(cookieName); err == nil {
		return stripScheme(cookie.Value, scheme)
	}
	return ""
}

// stripScheme removes a case-insensitive "<scheme> " prefix. A value without
// the prefix is returned as is.
func stripScheme(value, scheme string) string {
	value = strings.TrimSpace(value)
	if len(value) > len(scheme) && strings.EqualFold(value[:len(scheme)], scheme) && value[len(scheme)] == ' ' {
		return strings.TrimSpace(value[len(scheme)+1:])
	}
	return value
}

func logAuthFailure(c *gin.Context, token string, err error) {
	logger.Warnw("authentication failed",
		"request_id", common.GetRequestID(c.Request.Context()),
		"path", c.Request.URL.Path,
		"client_ip", c.ClientIP(),
		"token_prefix", tokenPrefix(token),
		"error", err.Error(),
	)
}

func tokenPrefix(token string) string {
	if len(token) > 16 {
		return token[:16] + "..."
	}
	return token
}
