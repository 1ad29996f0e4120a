package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/utils/response"
)

// RecoveryConfig defines the config for Recovery middleware.
type RecoveryConfig struct {
	// EnableStackTrace includes stack trace in error response (for development).
	EnableStackTrace bool

	// OnPanic is called when a panic occurs.
	OnPanic func(c *gin.Context, err interface{}, stack []byte)
}

// DefaultRecoveryConfig is the default Recovery middleware config.
var DefaultRecoveryConfig = RecoveryConfig{}

// Recovery returns a middleware that recovers from panics.
// It converts panics to JSON error responses using the error code system.
func Recovery() gin.HandlerFunc {
	return RecoveryWithConfig(DefaultRecoveryConfig)
}

// RecoveryWithConfig returns a Recovery middleware with custom config.
func RecoveryWithConfig(config RecoveryConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()

			logger.Errorw("panic recovered",
				"request_id", GetRequestID(c.Request.Context()),
				"path", c.Request.URL.Path,
				"panic", fmt.Sprint(r),
				"stack", string(stack),
			)
			if config.OnPanic != nil {
				config.OnPanic(c, r, stack)
			}

			msg := fmt.Sprintf("panic: %v", r)
			if config.EnableStackTrace {
				msg = fmt.Sprintf("panic: %v\n%s", r, stack)
			}
			response.Fail(c, errors.ErrPanic.WithMessage(msg))
		}()
		c.Next()
	}
}
