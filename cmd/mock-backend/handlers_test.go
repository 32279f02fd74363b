package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/plot"
	"github.com/nexmath/nexmath/pkg/provider"
	"github.com/nexmath/nexmath/pkg/provider/openaicompat"
)

func newClient(t *testing.T) *openaicompat.Client {
	t.Helper()
	srv := httptest.NewServer(routes())
	t.Cleanup(srv.Close)
	return openaicompat.NewClient(openaicompat.Config{BaseURL: srv.URL, Model: mockModel})
}

func userRequest(msg api.Message) *provider.Request {
	return &provider.Request{System: "You are a tutor.", Messages: []api.Message{msg}}
}

func TestComplete(t *testing.T) {
	tests := []struct {
		name string
		msg  api.Message
		want string
		kind plot.BlockKind
		plot bool
	}{
		{"plot request", api.TextMessage(api.RoleUser, "Can you graph x^2?"), fencedPlotReply, plot.Fenced, true},
		{"unfenced", api.TextMessage(api.RoleUser, "plot it unfenced please"), unfencedPlotReply, plot.Fallback, true},
		{"explanation", api.TextMessage(api.RoleUser, "What is the derivative of x^2?"), explainReply, 0, false},
		{"image", api.Message{Role: api.RoleUser, Parts: []api.ContentPart{
			api.ImagePart("image/png", "iVBORw0KGgo="),
			api.TextPart("Please help me with this problem."),
		}}, imageReply, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := newClient(t).Complete(context.Background(), userRequest(tt.msg))
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if resp.Text != tt.want {
				t.Errorf("text = %q", resp.Text)
			}

			var blocks []plot.CodeBlock
			for b := range plot.Extract(resp.Text) {
				blocks = append(blocks, b)
			}
			if !tt.plot {
				if len(blocks) != 0 {
					t.Errorf("unexpected plot blocks: %v", blocks)
				}
				return
			}
			if len(blocks) != 1 || blocks[0].Kind != tt.kind {
				t.Errorf("blocks = %+v, want one %v block", blocks, tt.kind)
			}
		})
	}
}

func TestStream(t *testing.T) {
	events, err := newClient(t).Stream(context.Background(), userRequest(api.TextMessage(api.RoleUser, "draw a parabola")))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var sb strings.Builder
	deltas, done := 0, false
	for ev := range events {
		switch ev.Type {
		case provider.EventTextDelta:
			sb.WriteString(ev.Delta)
			deltas++
		case provider.EventDone:
			done = true
		case provider.EventError:
			t.Fatalf("stream error: %v", ev.Err)
		}
	}
	if !done {
		t.Error("stream ended without done event")
	}
	if sb.String() != fencedPlotReply {
		t.Errorf("assembled = %q", sb.String())
	}
	if deltas < 10 {
		t.Errorf("deltas = %d, want the reply split into many chunks", deltas)
	}
}

func TestUpstreamFailure(t *testing.T) {
	_, err := newClient(t).Complete(context.Background(), userRequest(api.TextMessage(api.RoleUser, "please fail upstream")))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSplitChunks(t *testing.T) {
	text := "a b\n```python\nx"
	chunks := splitChunks(text)
	if strings.Join(chunks, "") != text {
		t.Errorf("chunks do not reassemble: %q", chunks)
	}
	if len(chunks) != 4 {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestModels(t *testing.T) {
	rec := httptest.NewRecorder()
	routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), mockModel) {
		t.Errorf("models: %d %s", rec.Code, rec.Body)
	}
}
