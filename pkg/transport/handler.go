package transport

import (
	"context"

	"github.com/nexmath/nexmath/pkg/api"
)

// ChatHandler handles one tutoring turn. The implementation writes either
// a sequence of stream events (req.Stream) or one complete response to w.
type ChatHandler interface {
	Chat(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error
}

// ChatHandlerFunc adapts an ordinary function to a ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error

// Chat calls f(ctx, req, w).
func (f ChatHandlerFunc) Chat(ctx context.Context, req *api.ChatRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// SessionManager handles session lifecycle operations outside of a chat turn.
type SessionManager interface {
	// NewSession creates an empty session and returns its ID.
	NewSession(ctx context.Context) (string, error)

	// Session returns the stored history of a session, or an error wrapping
	// storage.ErrNotFound.
	Session(ctx context.Context, id string) (*api.Conversation, error)

	// DeleteSession removes a session.
	DeleteSession(ctx context.Context, id string) error

	// Health reports whether the backend and store are usable.
	Health(ctx context.Context) api.HealthResponse
}

// ConversationStore persists tutoring sessions. All methods are scoped to
// the tenant in the context (storage.GetTenant) when one is set.
type ConversationStore interface {
	// LoadConversation returns the session with the given ID, or
	// storage.ErrNotFound.
	LoadConversation(ctx context.Context, sessionID string) (*api.Conversation, error)

	// SaveConversation creates or replaces a session.
	SaveConversation(ctx context.Context, conv *api.Conversation) error

	// DeleteConversation removes a session, or returns storage.ErrNotFound.
	DeleteConversation(ctx context.Context, sessionID string) error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases connections and resources.
	Close() error
}

// ResponseWriter abstracts streaming and non-streaming output.
//
// WriteEvent and WriteResponse are mutually exclusive on one writer.
// After a terminal event (done or error) or after WriteResponse, further
// writes return an error.
type ResponseWriter interface {
	// WriteEvent sends one stream event.
	WriteEvent(ctx context.Context, event api.StreamEvent) error

	// WriteResponse sends a complete non-streaming reply.
	WriteResponse(ctx context.Context, resp *api.ChatResponse) error

	// Flush pushes buffered output to the client.
	Flush() error
}
