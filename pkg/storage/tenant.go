package storage

import "context"

type tenantKey struct{}

// SetTenant returns a context scoped to tenantID.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// GetTenant returns the tenant in ctx, or "" in single-tenant mode.
func GetTenant(ctx context.Context) string {
	if v, ok := ctx.Value(tenantKey{}).(string); ok {
		return v
	}
	return ""
}

// ScopedKey joins tenant and session ID into one key. Without a tenant the
// session ID is returned as is.
func ScopedKey(ctx context.Context, sessionID string) string {
	if t := GetTenant(ctx); t != "" {
		return t + ":" + sessionID
	}
	return sessionID
}
