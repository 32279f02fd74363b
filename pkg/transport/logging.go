package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexmath/nexmath/pkg/api"
)

// Logging returns middleware that logs one structured entry per chat turn
// with the request ID, mode, session, stream flag, and duration. HTTP status
// codes are only known to the HTTP layer and are counted there.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
			start := time.Now()

			err := next.Chat(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("mode", string(req.Mode)),
				slog.String("session_id", req.SessionID),
				slog.Bool("stream", req.Stream),
				slog.Bool("image", req.Image != ""),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat turn failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "chat turn completed", attrs...)
			}
			return err
		})
	}
}
