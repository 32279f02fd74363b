// Package transport defines the handler interfaces and middleware chain
// between the HTTP layer and the tutoring engine.
//
// ChatHandler runs one tutoring turn and writes its output through a
// ResponseWriter, which hides whether the client receives one JSON body or
// an SSE stream. SessionManager covers the session endpoints, and
// ConversationStore is the contract every storage backend implements.
//
// Middleware wraps ChatHandler with panic recovery, request ID assignment,
// and structured logging via log/slog. The HTTP adapter lives in
// pkg/transport/http.
package transport
