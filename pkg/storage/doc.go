// Package storage holds what the conversation store backends share:
// sentinel errors and the tenant context helpers.
//
// The backends (memory, postgres, redis) implement
// transport.ConversationStore. Keys are always scoped by
// GetTenant(ctx), so two tenants can use the same session ID without
// seeing each other's history.
package storage
