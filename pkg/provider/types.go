package provider

import "github.com/nexmath/nexmath/pkg/api"

// Request is one backend call: a system prompt plus the conversation.
type Request struct {
	Model     string
	System    string
	Messages  []api.Message
	MaxTokens int
}

// Usage records token counts reported by the backend.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a complete reply.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// EventType classifies a streaming event.
type EventType int

const (
	EventTextDelta EventType = iota // incremental text
	EventDone                       // stream finished
	EventError                      // stream failed
)

// Event is one streaming event from the backend.
type Event struct {
	Type  EventType
	Delta string
	Usage *Usage
	Err   error
}
