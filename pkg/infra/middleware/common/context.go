// Package common provides shared request-scoped values for middleware and handlers.
// It has no dependencies on other middleware packages so that both sides can import it.
package common

import (
	"context"

	"github.com/kart-io/bhasha/pkg/id"
)

// Header constants used across middleware.
const (
	// HeaderXRequestID is the header name for request ID.
	HeaderXRequestID = "X-Request-ID"
)

// RequestIDKey is the context key type for request ID.
type RequestIDKey struct{}

// OwnerKey is the context key type for the authenticated owner id.
type OwnerKey struct{}

// RolesKey is the context key type for the authenticated roles.
type RolesKey struct{}

// GetRequestID returns the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey{}, requestID)
}

// GenerateRequestID 生成新的请求 ID (ULID)。
func GenerateRequestID() string {
	return id.New()
}

// GetOwnerID 返回认证后的用户 ID，未认证时为空。
func GetOwnerID(ctx context.Context) string {
	if v, ok := ctx.Value(OwnerKey{}).(string); ok {
		return v
	}
	return ""
}

// WithOwnerID stores the owner id in the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerKey{}, ownerID)
}

// GetRoles 返回 token 中携带的角色。
func GetRoles(ctx context.Context) []string {
	if v, ok := ctx.Value(RolesKey{}).([]string); ok {
		return v
	}
	return nil
}

// WithRoles stores the roles in the context.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, RolesKey{}, roles)
}
