package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nexmath/nexmath/pkg/api"
)

func TestWriteResponseJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	resp := &api.ChatResponse{Response: "The derivative is 2x.", SessionID: "sess-1"}
	if err := rw.WriteResponse(context.Background(), resp); err != nil {
		t.Fatalf("WriteResponse error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var got api.ChatResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got != *resp {
		t.Errorf("got %+v, want %+v", got, *resp)
	}
}

func TestWriteEventFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	if err := rw.WriteEvent(context.Background(), api.DeltaEvent("Hello")); err != nil {
		t.Fatalf("WriteEvent error: %v", err)
	}

	body := rec.Body.String()
	if strings.Contains(body, "event:") {
		t.Errorf("unexpected event line in:\n%s", body)
	}
	if !strings.HasPrefix(body, "data: ") || !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("body is not one data frame:\n%q", body)
	}
	var got api.StreamEvent
	if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(body, "data: "))), &got); err != nil {
		t.Fatalf("failed to parse event JSON: %v", err)
	}
	if got.Type != api.EventDelta || got.Text != "Hello" {
		t.Errorf("event = %+v", got)
	}
}

func TestWriteEventHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)
	rw.WriteEvent(context.Background(), api.DeltaEvent("x"))

	want := map[string]string{
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if !rec.Flushed {
		t.Error("event was not flushed")
	}
}

func TestWriteEventAfterTerminal(t *testing.T) {
	tests := []struct {
		name     string
		terminal api.StreamEvent
	}{
		{"done", api.DoneEvent("final", "sess-1")},
		{"error", api.ErrorEvent("provider unavailable")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rw := newSSEResponseWriter(rec)

			if err := rw.WriteEvent(context.Background(), tt.terminal); err != nil {
				t.Fatalf("terminal WriteEvent: %v", err)
			}
			if !rw.isCompleted() {
				t.Error("writer not completed after terminal event")
			}
			if err := rw.WriteEvent(context.Background(), api.DeltaEvent("late")); err == nil {
				t.Error("expected error writing after terminal event")
			}
		})
	}
}

func TestWriteResponseAfterStreaming(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteEvent(context.Background(), api.DeltaEvent("partial"))
	if err := rw.WriteResponse(context.Background(), &api.ChatResponse{}); err == nil {
		t.Error("expected error for WriteResponse after streaming started")
	}
	if !rw.hasStartedStreaming() {
		t.Error("hasStartedStreaming = false")
	}
}

func TestWriteResponseTwice(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteResponse(context.Background(), &api.ChatResponse{Response: "a"})
	if err := rw.WriteResponse(context.Background(), &api.ChatResponse{Response: "b"}); err == nil {
		t.Error("expected error for second WriteResponse")
	}
	if rw.hasStartedStreaming() {
		t.Error("hasStartedStreaming = true for a JSON reply")
	}
}
