package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bhasha/pkg/errors"
	"github.com/kart-io/bhasha/pkg/infra/middleware/common"
	"github.com/kart-io/bhasha/pkg/utils/response"
)

// Enforcer is satisfied by *casbin.Enforcer.
type Enforcer interface {
	Enforce(rvals ...interface{}) (bool, error)
}

// Authorize returns a middleware that checks the authenticated owner and its
// roles against enforcer, using the matched route pattern and HTTP method.
// Must run after Auth.
func Authorize(enforcer Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		owner := common.GetOwnerID(ctx)
		if owner == "" {
			response.Fail(c, errors.ErrUnauthorized.WithMessage("no subject found"))
			return
		}

		obj := c.FullPath()
		if obj == "" {
			obj = c.Request.URL.Path
		}
		act := c.Request.Method

		// owner 本身的 g 规则保存在数据库中，token 中的 roles 逐个判断
		subjects := append([]string{owner}, common.GetRoles(ctx)...)
		for _, sub := range subjects {
			allowed, err := enforcer.Enforce(sub, obj, act)
			if err != nil {
				logger.Errorw("authorization error", "subject", sub, "resource", obj, "action", act, "error", err.Error())
				response.Fail(c, errors.ErrInternal.WithCause(err))
				return
			}
			if allowed {
				c.Next()
				return
			}
		}

		logger.Warnw("authorization denied",
			"request_id", common.GetRequestID(ctx),
			"owner_id", owner,
			"resource", obj,
			"action", act,
		)
		response.Fail(c, errors.ErrForbidden.WithMessagef("access denied: %s %s", act, obj))
	}
}
