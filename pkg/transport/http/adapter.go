package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/transport"
)

// Adapter serves the tutoring API over HTTP.
type Adapter struct {
	chat     transport.ChatHandler
	sessions transport.SessionManager
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds
}

// DefaultConfig returns the default adapter configuration. The body limit
// leaves room for a base64 encoded 20 MiB image.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     32 << 20,
		ShutdownTimeout: 30,
	}
}

// NewAdapter creates an HTTP adapter. Middleware is applied to chat in the
// given order.
func NewAdapter(chat transport.ChatHandler, sessions transport.SessionManager, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		chat = transport.Chain(middlewares...)(chat)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		chat:     chat,
		sessions: sessions,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /api/chat", a.handleChat)
	a.mux.HandleFunc("POST /api/chat-stream", a.handleChatStream)
	a.mux.HandleFunc("POST /api/new-session", a.handleNewSession)
	a.mux.HandleFunc("GET /api/sessions/{id}", a.handleGetSession)
	a.mux.HandleFunc("DELETE /api/sessions/{id}", a.handleDeleteSession)
	a.mux.HandleFunc("GET /api/health", a.handleHealth)
	a.mux.HandleFunc("GET /healthz", handleLiveness)

	return a
}

// Handler returns the http.Handler for this adapter, including X-Request-ID
// propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// InFlight returns the registry of active streams.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// httpRequestIDMiddleware copies a client supplied X-Request-ID into the
// context and echoes the effective ID in the response headers.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	w.ensureRequestIDHeader()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleChat handles POST /api/chat.
func (a *Adapter) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeChatRequest(w, r)
	if !ok {
		return
	}

	rw := newSSEResponseWriter(w)
	if err := a.chat.Chat(r.Context(), req, rw); err != nil {
		a.writeHandlerError(w, rw, req, err)
	}
}

// handleChatStream handles POST /api/chat-stream. Streams on a known
// session are registered so DELETE /api/sessions/{id} can stop them.
func (a *Adapter) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeChatRequest(w, r)
	if !ok {
		return
	}
	req.Stream = true

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if req.SessionID != "" {
		done := a.inflight.Register(req.SessionID, cancel)
		defer done()
	}

	rw := newSSEResponseWriter(w)
	if err := a.chat.Chat(ctx, req, rw); err != nil {
		a.writeHandlerError(w, rw, req, err)
	}
}

func (a *Adapter) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*api.ChatRequest, bool) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return nil, false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return nil, false
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return nil, false
	}
	return &req, true
}

// handleNewSession handles POST /api/new-session.
func (a *Adapter) handleNewSession(w http.ResponseWriter, r *http.Request) {
	id, err := a.sessions.NewSession(r.Context())
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, api.SessionResponse{SessionID: id})
}

// handleGetSession handles GET /api/sessions/{id}.
func (a *Adapter) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	conv, err := a.sessions.Session(r.Context(), id)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// handleDeleteSession handles DELETE /api/sessions/{id}. Active streams of
// the session are cancelled first. A session that only existed as a
// running stream still counts as deleted.
func (a *Adapter) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	cancelled := a.inflight.Cancel(id)

	err := a.sessions.DeleteSession(r.Context(), id)
	if err != nil {
		apiErr := transport.AsAPIError(err)
		if apiErr.Type != api.ErrorTypeNotFound || cancelled == 0 {
			transport.WriteAPIError(w, apiErr)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /api/health.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := a.sessions.Health(r.Context())
	status := http.StatusOK
	if health.Status != api.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func sessionIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !api.ValidateSessionID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed session ID"))
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeHandlerError reports a failed turn. Once a stream has started, or
// when a stream request fails upstream, the error goes out as an SSE error
// event. Everything else is a JSON error body.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, req *api.ChatRequest, err error) {
	apiErr := transport.AsAPIError(err)

	if rw.isCompleted() && !rw.hasStartedStreaming() {
		// JSON reply already sent.
		return
	}
	upstream := apiErr.Type == api.ErrorTypeModelError || apiErr.Type == api.ErrorTypeServerError
	if rw.hasStartedStreaming() || (req.Stream && upstream) {
		if !rw.isCompleted() {
			rw.WriteEvent(context.Background(), api.ErrorEvent(apiErr.Message))
		}
		return
	}
	transport.WriteAPIError(w, apiErr)
}
