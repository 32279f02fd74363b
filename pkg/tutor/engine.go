package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/observability"
	"github.com/nexmath/nexmath/pkg/prompt"
	"github.com/nexmath/nexmath/pkg/provider"
	"github.com/nexmath/nexmath/pkg/storage"
	"github.com/nexmath/nexmath/pkg/transport"
)

// Engine runs tutoring turns. It implements transport.ChatHandler and
// transport.SessionManager.
type Engine struct {
	provider provider.Provider
	store    transport.ConversationStore
	rewriter Rewriter
	cfg      Config
	logger   *slog.Logger
}

var (
	_ transport.ChatHandler    = (*Engine)(nil)
	_ transport.SessionManager = (*Engine)(nil)
)

// Option configures an Engine.
type Option func(*Engine)

// WithRewriter sets the plot renderer. Without one, replies are returned
// as generated.
func WithRewriter(rw Rewriter) Option {
	return func(e *Engine) {
		if rw != nil {
			e.rewriter = rw
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine. The provider and store must not be nil.
func New(p provider.Provider, store transport.ConversationStore, cfg Config, opts ...Option) (*Engine, error) {
	if p == nil {
		return nil, errors.New("tutor: provider must not be nil")
	}
	if store == nil {
		return nil, errors.New("tutor: store must not be nil")
	}
	e := &Engine{
		provider: p,
		store:    store,
		rewriter: nopRewriter{},
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Chat runs one turn and writes the reply to w: a ChatResponse, or for
// stream requests a sequence of delta events followed by a done event.
// Nothing is stored when the provider fails.
func (e *Engine) Chat(ctx context.Context, req *api.ChatRequest, w transport.ResponseWriter) error {
	req.ApplyDefaults()
	if apiErr := api.ValidateChatRequest(req, e.cfg.validation()); apiErr != nil {
		e.recordTurn(req, "invalid")
		return apiErr
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		text = api.DefaultImagePrompt
	}

	if req.SessionID == "" {
		req.SessionID = api.NewSessionID()
	}
	conv, err := e.conversation(ctx, req.SessionID)
	if err != nil {
		e.recordTurn(req, "error")
		return err
	}

	conv.Messages = append(conv.Messages, userMessage(req, prompt.BuildUserText(prompt.OptionsFromRequest(req, text))))
	conv.Trim(e.cfg.maxMessages())

	provReq := &provider.Request{
		Model:     e.model(),
		System:    prompt.SystemPrompt(),
		Messages:  conv.Messages,
		MaxTokens: e.cfg.MaxTokens,
	}

	var raw string
	if req.Stream {
		raw, err = e.stream(ctx, provReq, w)
	} else {
		raw, err = e.complete(ctx, provReq)
	}
	if err != nil {
		outcome := "error"
		if ctx.Err() != nil {
			outcome = "cancelled"
		}
		e.recordTurn(req, outcome)
		return err
	}

	rendered := e.rewriter.Rewrite(ctx, raw, allowPlots(req.PlotMode, text))
	debug.Log("engine", "reply rendered",
		"session_id", req.SessionID,
		"reply", debug.Truncate(debug.RedactImages(rendered), 500),
	)

	conv.Messages = append(conv.Messages, api.TextMessage(api.RoleAssistant, raw))
	conv.LastAccessed = time.Now().UTC()
	if err := e.store.SaveConversation(ctx, conv); err != nil {
		// The reply is still valid; only the history is behind.
		e.logger.Error("saving conversation failed", "session_id", conv.SessionID, "error", err)
	}

	e.recordTurn(req, "ok")
	if req.Stream {
		return w.WriteEvent(ctx, api.DoneEvent(rendered, req.SessionID))
	}
	return w.WriteResponse(ctx, &api.ChatResponse{Response: rendered, SessionID: req.SessionID})
}

func (e *Engine) model() string {
	if e.cfg.Model != "" {
		return e.cfg.Model
	}
	return e.provider.Model()
}

// conversation loads the history of id. An unknown session starts empty
// under the same ID.
func (e *Engine) conversation(ctx context.Context, id string) (*api.Conversation, error) {
	conv, err := e.store.LoadConversation(ctx, id)
	switch {
	case err == nil:
		return conv, nil
	case errors.Is(err, storage.ErrNotFound):
		debug.Log("engine", "starting session", "session_id", id)
		return &api.Conversation{SessionID: id}, nil
	default:
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
}

// userMessage builds the stored user turn. An attached image comes first,
// followed by the framed text.
func userMessage(req *api.ChatRequest, text string) api.Message {
	if req.Image == "" {
		return api.TextMessage(api.RoleUser, text)
	}
	return api.Message{
		Role: api.RoleUser,
		Parts: []api.ContentPart{
			api.ImagePart(req.ImageType, req.Image),
			api.TextPart(text),
		},
	}
}

func (e *Engine) complete(ctx context.Context, req *provider.Request) (string, error) {
	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// stream forwards every text delta to w and returns the assembled reply.
func (e *Engine) stream(ctx context.Context, req *provider.Request, w transport.ResponseWriter) (string, error) {
	events, err := e.provider.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var (
		text strings.Builder
		done bool
	)
	for ev := range events {
		switch ev.Type {
		case provider.EventTextDelta:
			if ev.Delta == "" {
				continue
			}
			text.WriteString(ev.Delta)
			if err := w.WriteEvent(ctx, api.DeltaEvent(ev.Delta)); err != nil {
				return "", fmt.Errorf("writing delta: %w", err)
			}
		case provider.EventError:
			if ev.Err == nil {
				return "", api.NewModelError("stream failed")
			}
			return "", ev.Err
		case provider.EventDone:
			done = true
		}
	}
	if !done {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", api.NewModelError("stream ended before completion")
	}
	return text.String(), nil
}

func (e *Engine) recordTurn(req *api.ChatRequest, outcome string) {
	observability.ChatTurnsTotal.WithLabelValues(string(req.Mode), outcome).Inc()
}

// NewSession returns a fresh session ID. Nothing is stored until the first
// turn completes.
func (e *Engine) NewSession(context.Context) (string, error) {
	return api.NewSessionID(), nil
}

// Session returns the stored history of id.
func (e *Engine) Session(ctx context.Context, id string) (*api.Conversation, error) {
	conv, err := e.store.LoadConversation(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, api.NewNotFoundError(fmt.Sprintf("session %s not found", id))
		}
		return nil, err
	}
	return conv, nil
}

// DeleteSession removes the history of id.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	if err := e.store.DeleteConversation(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return api.NewNotFoundError(fmt.Sprintf("session %s not found", id))
		}
		return err
	}
	return nil
}

// Health reports whether the provider and the store can serve requests.
func (e *Engine) Health(ctx context.Context) api.HealthResponse {
	if hc, ok := e.provider.(provider.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return api.HealthResponse{Status: api.HealthStatusError, Message: err.Error()}
		}
	}
	if err := e.store.HealthCheck(ctx); err != nil {
		return api.HealthResponse{Status: api.HealthStatusError, Message: "storage unavailable: " + err.Error()}
	}
	return api.HealthResponse{Status: api.HealthStatusOK, Model: e.model()}
}
