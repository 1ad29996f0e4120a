// Package casbin provides Casbin-based authorization backed by the service database.
package casbin

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// RoleAdmin is allowed to call administrative routes.
const RoleAdmin = "admin"

// DefaultModel matches gin route patterns with keyMatch2 and treats "*" as any method.
const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// AdminRoutes are the routes reserved for RoleAdmin.
var AdminRoutes = [][]string{
	{RoleAdmin, "/v1/documents/initialize-kb", "POST"},
	{RoleAdmin, "/v1/rag/evaluation/stats", "GET"},
	{RoleAdmin, "/v1/system/initialize", "POST"},
	{RoleAdmin, "/v1/system/knowledge-base", "DELETE"},
}

// NewGormEnforcer creates a Casbin enforcer whose policies live in db.
// The casbin_rule table is created when missing; AdminRoutes are seeded idempotently.
func NewGormEnforcer(db *gorm.DB) (*casbin.Enforcer, error) {
	a, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create gorm adapter: %w", err)
	}

	m, err := model.NewModelFromString(DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	e, err := casbin.NewEnforcer(m, a)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}
	if err := e.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}

	// AddPolicy 对已存在的规则返回 false，不报错
	for _, rule := range AdminRoutes {
		if _, err := e.AddPolicy(rule); err != nil {
			return nil, fmt.Errorf("failed to seed policy %v: %w", rule, err)
		}
	}
	return e, nil
}
