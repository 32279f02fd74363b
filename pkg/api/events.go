package api

// StreamEventType identifies an SSE event of a streaming chat reply.
type StreamEventType string

const (
	// EventDelta carries a fragment of the raw model text.
	EventDelta StreamEventType = "delta"
	// EventDone carries the final, rendered reply.
	EventDone StreamEventType = "done"
	// EventError reports a failure after streaming started.
	EventError StreamEventType = "error"
)

// StreamEvent is one SSE event of a streaming chat reply.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Text      string          `json:"text,omitempty"`
	Response  string          `json:"response,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Terminal reports whether no further events follow e.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// DeltaEvent returns a delta event for text.
func DeltaEvent(text string) StreamEvent {
	return StreamEvent{Type: EventDelta, Text: text}
}

// DoneEvent returns the terminal event for a completed reply.
func DoneEvent(response, sessionID string) StreamEvent {
	return StreamEvent{Type: EventDone, Response: response, SessionID: sessionID}
}

// ErrorEvent returns the terminal event for a failed reply.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Error: message}
}
