package tutor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/provider"
	"github.com/nexmath/nexmath/pkg/storage"
	"github.com/nexmath/nexmath/pkg/storage/memory"
	"github.com/nexmath/nexmath/pkg/transport"
)

// testSessionID is a well-formed session ID.
const testSessionID = "0b6e3c1e-5d0c-4f43-9a57-2f4f0b0d6a11"

// pngBase64 is the PNG signature, enough for content sniffing.
const pngBase64 = "iVBORw0KGgo="

// mockProvider returns canned replies and records every request.
type mockProvider struct {
	mu        sync.Mutex
	text      string
	err       error
	events    []provider.Event
	healthErr error
	requests  []provider.Request
}

func (m *mockProvider) Name() string  { return "mock" }
func (m *mockProvider) Model() string { return "mock-model" }
func (m *mockProvider) Close() error  { return nil }

func (m *mockProvider) record(req *provider.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	cp.Messages = append([]api.Message(nil), req.Messages...)
	m.requests = append(m.requests, cp)
}

func (m *mockProvider) Complete(_ context.Context, req *provider.Request) (*provider.Response, error) {
	m.record(req)
	if m.err != nil {
		return nil, m.err
	}
	return &provider.Response{Text: m.text, Model: "mock-model"}, nil
}

func (m *mockProvider) Stream(_ context.Context, req *provider.Request) (<-chan provider.Event, error) {
	m.record(req)
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan provider.Event, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (m *mockProvider) HealthCheck(context.Context) error { return m.healthErr }

func (m *mockProvider) lastRequest(t *testing.T) provider.Request {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		t.Fatal("provider was not called")
	}
	return m.requests[len(m.requests)-1]
}

// recordingRewriter replaces "PLOT" with "<img>" when plots are allowed.
type recordingRewriter struct {
	calls []bool
}

func (r *recordingRewriter) Rewrite(_ context.Context, text string, allow bool) string {
	r.calls = append(r.calls, allow)
	if !allow {
		return text
	}
	return strings.ReplaceAll(text, "PLOT", "<img>")
}

type recordingWriter struct {
	events   []api.StreamEvent
	response *api.ChatResponse
}

func (w *recordingWriter) WriteEvent(_ context.Context, e api.StreamEvent) error {
	w.events = append(w.events, e)
	return nil
}

func (w *recordingWriter) WriteResponse(_ context.Context, r *api.ChatResponse) error {
	w.response = r
	return nil
}

func (w *recordingWriter) Flush() error { return nil }

var _ transport.ResponseWriter = (*recordingWriter)(nil)

func newTestEngine(t *testing.T, p *mockProvider, cfg Config) (*Engine, *memory.Store, *recordingRewriter) {
	t.Helper()
	store := memory.New(100)
	rw := &recordingRewriter{}
	e, err := New(p, store, cfg, WithRewriter(rw))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, store, rw
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, memory.New(1), Config{}); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := New(&mockProvider{}, nil, Config{}); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestChat_NonStreaming(t *testing.T) {
	p := &mockProvider{text: "The answer is 4."}
	e, store, rw := newTestEngine(t, p, Config{})

	req := &api.ChatRequest{Message: "what is 2+2"}
	w := &recordingWriter{}
	if err := e.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if w.response == nil {
		t.Fatal("no response written")
	}
	if w.response.Response != "The answer is 4." {
		t.Errorf("response = %q", w.response.Response)
	}
	if !api.ValidateSessionID(w.response.SessionID) {
		t.Errorf("session ID %q is not a UUID", w.response.SessionID)
	}
	if req.SessionID != w.response.SessionID {
		t.Error("request session ID not updated")
	}

	got := p.lastRequest(t)
	if got.Model != "mock-model" {
		t.Errorf("model = %q", got.Model)
	}
	if !strings.Contains(got.System, "NexMath") {
		t.Error("system prompt missing")
	}
	if len(got.Messages) != 1 || !strings.Contains(got.Messages[0].Text, "Problem: what is 2+2") {
		t.Errorf("unexpected messages %+v", got.Messages)
	}

	if len(rw.calls) != 1 || rw.calls[0] {
		t.Errorf("rewriter calls = %v, want [false]", rw.calls)
	}

	conv, err := store.LoadConversation(context.Background(), w.response.SessionID)
	if err != nil {
		t.Fatalf("stored conversation: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("stored %d messages, want 2", len(conv.Messages))
	}
	if conv.Messages[1].Role != api.RoleAssistant || conv.Messages[1].Text != "The answer is 4." {
		t.Errorf("assistant message = %+v", conv.Messages[1])
	}
	if conv.LastAccessed.IsZero() {
		t.Error("LastAccessed not set")
	}
}

func TestChat_PlotGate(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		plotMode api.PlotMode
		want     bool
	}{
		{"on demand without request", "differentiate x^2", api.PlotOnDemand, false},
		{"on demand with request", "please graph x^2", api.PlotOnDemand, true},
		{"auto", "differentiate x^2", api.PlotAuto, true},
		{"substring does not count", "paragraph about limits", api.PlotOnDemand, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, rw := newTestEngine(t, &mockProvider{text: "ok"}, Config{})
			if err := e.Chat(context.Background(), &api.ChatRequest{Message: tt.message, PlotMode: tt.plotMode}, &recordingWriter{}); err != nil {
				t.Fatalf("Chat: %v", err)
			}
			if len(rw.calls) != 1 || rw.calls[0] != tt.want {
				t.Errorf("gate = %v, want %v", rw.calls, tt.want)
			}
		})
	}
}

func TestChat_StoresRawText(t *testing.T) {
	p := &mockProvider{text: "Here: PLOT"}
	e, store, _ := newTestEngine(t, p, Config{})

	w := &recordingWriter{}
	if err := e.Chat(context.Background(), &api.ChatRequest{Message: "plot sin(x)"}, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if w.response.Response != "Here: <img>" {
		t.Errorf("response = %q, want rendered text", w.response.Response)
	}
	conv, _ := store.LoadConversation(context.Background(), w.response.SessionID)
	if conv.Messages[1].Text != "Here: PLOT" {
		t.Errorf("stored %q, want raw text", conv.Messages[1].Text)
	}
}

func TestChat_ProviderError(t *testing.T) {
	p := &mockProvider{err: api.NewModelError("backend down")}
	e, store, rw := newTestEngine(t, p, Config{})

	w := &recordingWriter{}
	err := e.Chat(context.Background(), &api.ChatRequest{Message: "hi", SessionID: testSessionID}, w)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeModelError {
		t.Fatalf("err = %v, want model error", err)
	}
	if w.response != nil || len(w.events) != 0 {
		t.Error("nothing should be written on provider failure")
	}
	if len(rw.calls) != 0 {
		t.Error("rewriter called on failure")
	}
	if _, err := store.LoadConversation(context.Background(), testSessionID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("conversation stored after failure: %v", err)
	}
}

func TestChat_InvalidRequest(t *testing.T) {
	tests := []struct {
		name  string
		req   *api.ChatRequest
		param string
	}{
		{"empty", &api.ChatRequest{}, "message"},
		{"bad mode", &api.ChatRequest{Message: "x", Mode: "lecture"}, "mode"},
		{"bad session", &api.ChatRequest{Message: "x", SessionID: "nope"}, "session_id"},
		{"bad image", &api.ChatRequest{Image: "!!!"}, "image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{text: "ok"}
			e, _, _ := newTestEngine(t, p, Config{})
			err := e.Chat(context.Background(), tt.req, &recordingWriter{})
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeInvalidRequest {
				t.Fatalf("err = %v, want invalid request", err)
			}
			if apiErr.Param != tt.param {
				t.Errorf("param = %q, want %q", apiErr.Param, tt.param)
			}
			if len(p.requests) != 0 {
				t.Error("provider called for invalid request")
			}
		})
	}
}

func TestChat_ContinuesSession(t *testing.T) {
	p := &mockProvider{text: "first"}
	e, store, _ := newTestEngine(t, p, Config{})
	ctx := context.Background()

	if err := e.Chat(ctx, &api.ChatRequest{Message: "one", SessionID: testSessionID}, &recordingWriter{}); err != nil {
		t.Fatal(err)
	}
	p.text = "second"
	if err := e.Chat(ctx, &api.ChatRequest{Message: "two", SessionID: testSessionID, Mode: api.ModeQuiz}, &recordingWriter{}); err != nil {
		t.Fatal(err)
	}

	got := p.lastRequest(t)
	if len(got.Messages) != 3 {
		t.Fatalf("provider saw %d messages, want 3", len(got.Messages))
	}
	if got.Messages[1].Text != "first" || !strings.HasSuffix(got.Messages[2].Text, "Topic: two") {
		t.Errorf("unexpected history %+v", got.Messages)
	}

	conv, _ := store.LoadConversation(ctx, testSessionID)
	if len(conv.Messages) != 4 {
		t.Errorf("stored %d messages, want 4", len(conv.Messages))
	}
}

func TestChat_TrimsHistory(t *testing.T) {
	p := &mockProvider{text: "reply"}
	e, store, _ := newTestEngine(t, p, Config{MaxMessages: 4})
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three"} {
		if err := e.Chat(ctx, &api.ChatRequest{Message: msg, SessionID: testSessionID, Mode: api.ModeQuiz}, &recordingWriter{}); err != nil {
			t.Fatal(err)
		}
	}

	// The third request holds one, reply, two, reply, three, trimmed to
	// the first two plus the last two.
	got := p.lastRequest(t)
	if len(got.Messages) != 4 {
		t.Fatalf("provider saw %d messages, want 4", len(got.Messages))
	}
	if !strings.HasSuffix(got.Messages[0].Text, "Topic: one") || !strings.HasSuffix(got.Messages[3].Text, "Topic: three") {
		t.Errorf("unexpected trimmed history %+v", got.Messages)
	}

	conv, _ := store.LoadConversation(ctx, testSessionID)
	if len(conv.Messages) != 5 {
		t.Errorf("stored %d messages, want 5", len(conv.Messages))
	}
}

func TestChat_Image(t *testing.T) {
	p := &mockProvider{text: "ok"}
	e, _, rw := newTestEngine(t, p, Config{})

	if err := e.Chat(context.Background(), &api.ChatRequest{Image: pngBase64}, &recordingWriter{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	msg := p.lastRequest(t).Messages[0]
	if len(msg.Parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(msg.Parts))
	}
	img := msg.Parts[0]
	if img.Type != api.PartImage || img.Source == nil || img.Source.MediaType != "image/png" || img.Source.Data != pngBase64 {
		t.Errorf("image part = %+v", img)
	}
	text := msg.Parts[1].Text
	if !strings.Contains(text, api.DefaultImagePrompt) {
		t.Error("default image prompt missing")
	}
	if !strings.Contains(text, "first transcribe the problem") {
		t.Error("transcription instruction missing")
	}
	if rw.calls[0] {
		t.Error("default image prompt should not enable plots")
	}
}

func TestChat_Streaming(t *testing.T) {
	p := &mockProvider{events: []provider.Event{
		{Type: provider.EventTextDelta, Delta: "Here "},
		{Type: provider.EventTextDelta, Delta: ""},
		{Type: provider.EventTextDelta, Delta: "is PLOT"},
		{Type: provider.EventDone},
	}}
	e, store, _ := newTestEngine(t, p, Config{})

	w := &recordingWriter{}
	req := &api.ChatRequest{Message: "draw it", SessionID: testSessionID, Stream: true}
	if err := e.Chat(context.Background(), req, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if w.response != nil {
		t.Error("streaming turn wrote a JSON response")
	}
	want := []api.StreamEvent{
		api.DeltaEvent("Here "),
		api.DeltaEvent("is PLOT"),
		api.DoneEvent("Here is <img>", testSessionID),
	}
	if len(w.events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(w.events), len(want), w.events)
	}
	for i := range want {
		if w.events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, w.events[i], want[i])
		}
	}

	conv, _ := store.LoadConversation(context.Background(), testSessionID)
	if conv.Messages[1].Text != "Here is PLOT" {
		t.Errorf("stored %q", conv.Messages[1].Text)
	}
}

func TestChat_StreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		events []provider.Event
	}{
		{"error event", []provider.Event{
			{Type: provider.EventTextDelta, Delta: "partial"},
			{Type: provider.EventError, Err: api.NewModelError("cut off")},
		}},
		{"error event without cause", []provider.Event{{Type: provider.EventError}}},
		{"closed without done", []provider.Event{{Type: provider.EventTextDelta, Delta: "partial"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store, _ := newTestEngine(t, &mockProvider{events: tt.events}, Config{})
			w := &recordingWriter{}
			err := e.Chat(context.Background(), &api.ChatRequest{Message: "hi", SessionID: testSessionID, Stream: true}, w)

			var apiErr *api.APIError
			if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeModelError {
				t.Fatalf("err = %v, want model error", err)
			}
			for _, ev := range w.events {
				if ev.Type == api.EventDone {
					t.Error("done event written for failed stream")
				}
			}
			if _, err := store.LoadConversation(context.Background(), testSessionID); !errors.Is(err, storage.ErrNotFound) {
				t.Error("failed stream was stored")
			}
		})
	}
}

func TestChat_StreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, _, _ := newTestEngine(t, &mockProvider{events: []provider.Event{
		{Type: provider.EventTextDelta, Delta: "partial"},
	}}, Config{})
	err := e.Chat(ctx, &api.ChatRequest{Message: "hi", Stream: true}, &recordingWriter{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestChat_ConfigModel(t *testing.T) {
	p := &mockProvider{text: "ok"}
	e, _, _ := newTestEngine(t, p, Config{Model: "override", MaxTokens: 512})
	if err := e.Chat(context.Background(), &api.ChatRequest{Message: "hi"}, &recordingWriter{}); err != nil {
		t.Fatal(err)
	}
	got := p.lastRequest(t)
	if got.Model != "override" || got.MaxTokens != 512 {
		t.Errorf("model=%q max_tokens=%d", got.Model, got.MaxTokens)
	}
}

func TestSessions(t *testing.T) {
	e, _, _ := newTestEngine(t, &mockProvider{text: "ok"}, Config{})
	ctx := context.Background()

	id, err := e.NewSession(ctx)
	if err != nil || !api.ValidateSessionID(id) {
		t.Fatalf("NewSession = %q, %v", id, err)
	}

	var apiErr *api.APIError
	if _, err := e.Session(ctx, id); !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeNotFound {
		t.Errorf("Session on empty store: %v", err)
	}
	if err := e.DeleteSession(ctx, id); !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeNotFound {
		t.Errorf("DeleteSession on empty store: %v", err)
	}

	if err := e.Chat(ctx, &api.ChatRequest{Message: "hi", SessionID: id}, &recordingWriter{}); err != nil {
		t.Fatal(err)
	}
	conv, err := e.Session(ctx, id)
	if err != nil || len(conv.Messages) != 2 {
		t.Fatalf("Session = %+v, %v", conv, err)
	}
	if err := e.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := e.Session(ctx, id); err == nil {
		t.Error("session still present after delete")
	}
}

type failingStore struct {
	*memory.Store
	err error
}

func (s failingStore) HealthCheck(context.Context) error { return s.err }

func (s failingStore) SaveConversation(context.Context, *api.Conversation) error { return s.err }

func TestChat_SaveFailureStillReplies(t *testing.T) {
	e, err := New(&mockProvider{text: "ok"}, failingStore{Store: memory.New(1), err: errors.New("disk full")}, Config{})
	if err != nil {
		t.Fatal(err)
	}
	w := &recordingWriter{}
	if err := e.Chat(context.Background(), &api.ChatRequest{Message: "hi"}, w); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if w.response == nil || w.response.Response != "ok" {
		t.Errorf("response = %+v", w.response)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name      string
		healthErr error
		storeErr  error
		status    string
		message   string
	}{
		{"ok", nil, nil, api.HealthStatusOK, ""},
		{"provider", errors.New("API key not configured"), nil, api.HealthStatusError, "API key not configured"},
		{"store", nil, errors.New("connection refused"), api.HealthStatusError, "storage unavailable: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(&mockProvider{healthErr: tt.healthErr}, failingStore{Store: memory.New(1), err: tt.storeErr}, Config{})
			if err != nil {
				t.Fatal(err)
			}
			got := e.Health(context.Background())
			if got.Status != tt.status || got.Message != tt.message {
				t.Errorf("Health = %+v", got)
			}
			if tt.status == api.HealthStatusOK && got.Model != "mock-model" {
				t.Errorf("model = %q", got.Model)
			}
		})
	}
}

func TestWantsPlot(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"plot y = x^2", true},
		{"Can you GRAPH this?", true},
		{"show me a visual", true},
		{"visualize the area", true},
		{"make a chart", true},
		{"draw the tangent line", true},
		{"graphs of functions", false},
		{"a paragraph", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := WantsPlot(tt.msg); got != tt.want {
			t.Errorf("WantsPlot(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
