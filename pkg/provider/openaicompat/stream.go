package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/provider"
)

// maxChunkSize bounds one SSE line.
const maxChunkSize = 1 << 20

// ParseSSEStream reads Chat Completions chunks from body and sends events
// on ch. It ends with exactly one Done or Error event unless ctx is
// cancelled. The caller closes ch.
//
//	data: {"id":"...","choices":[...]}
//
//	data: [DONE]
//
// Malformed chunks are logged and skipped. Usage arrives in a trailing
// usage-only chunk when stream_options.include_usage is set and is attached
// to the Done event.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkSize)

	var usage *provider.Usage
	send := func(ev provider.Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			send(provider.Event{Type: provider.EventDone, Usage: usage})
			return
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"error", err.Error(),
				"data", debug.Truncate(payload, 200),
			)
			continue
		}

		if chunk.Usage != nil {
			usage = &provider.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if c := chunk.Choices[0].Delta.Content; c != nil && *c != "" {
			if !send(provider.Event{Type: provider.EventTextDelta, Delta: *c}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		send(provider.Event{
			Type: provider.EventError,
			Err:  api.NewModelError("stream read error: " + err.Error()),
		})
		return
	}
	if ctx.Err() != nil {
		return
	}
	// Some backends close the stream without [DONE].
	send(provider.Event{Type: provider.EventDone, Usage: usage})
}
