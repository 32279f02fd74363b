package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/nexmath/nexmath/pkg/api"
)

// RequestID returns middleware that makes sure every turn has a request ID.
// An ID already in the context (from the X-Request-ID header) is kept.
func RequestID() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Chat(ctx, req, w)
		})
	}
}

// NewRequestID returns 16 random bytes, hex-encoded.
func NewRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
