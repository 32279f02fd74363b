package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/nexmath/nexmath/pkg/api"
)

// Recovery returns middleware that turns a panic in the handler into a
// server error, so one bad turn does not take the server down.
func Recovery() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in chat handler",
						"request_id", RequestIDFromContext(ctx),
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Chat(ctx, req, w)
		})
	}
}
