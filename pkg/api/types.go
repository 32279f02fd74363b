package api

import (
	"encoding/json"
	"errors"
	"time"
)

// Mode selects the tutoring behavior for one turn.
type Mode string

const (
	ModeSolve   Mode = "solve"
	ModeExplain Mode = "explain"
	ModeQuiz    Mode = "quiz"
	ModeExam    Mode = "exam"
)

// ExplainAction is a follow-up on a previous explanation.
type ExplainAction string

const (
	ExplainDeeper      ExplainAction = "deeper"
	ExplainDifferently ExplainAction = "differently"
	ExplainVerify      ExplainAction = "verify"
	ExplainReview      ExplainAction = "review"
)

// ExplainStyle selects which representation an explanation leads with.
type ExplainStyle string

const (
	StyleIntuition ExplainStyle = "intuition"
	StyleEquation  ExplainStyle = "equation"
)

// PlotMode controls when plotting code in a reply is rendered. In auto mode
// every reply is rendered; on demand only replies to messages that ask for
// a plot are.
type PlotMode string

const (
	PlotAuto     PlotMode = "auto"
	PlotOnDemand PlotMode = "on_demand"
)

// DefaultImagePrompt is the question used when a student sends only an image.
const DefaultImagePrompt = "Please analyze this calculus problem and help me understand how to approach it."

// ChatRequest is one student turn.
type ChatRequest struct {
	Message         string        `json:"message"`
	Image           string        `json:"image,omitempty"`
	ImageType       string        `json:"image_type,omitempty"`
	Mode            Mode          `json:"mode,omitempty"`
	SessionID       string        `json:"session_id,omitempty"`
	ExplainAction   ExplainAction `json:"explain_action,omitempty"`
	OriginalConcept string        `json:"original_concept,omitempty"`
	PlotMode        PlotMode      `json:"plot_mode,omitempty"`
	ShowSteps       *bool         `json:"show_steps,omitempty"`
	ExplainStyle    ExplainStyle  `json:"explain_style,omitempty"`
	ExamAnswer      bool          `json:"exam_answer,omitempty"`

	// Stream is set by the transport from the endpoint, not from the body.
	Stream bool `json:"-"`
}

// ApplyDefaults fills unset options with their defaults.
func (r *ChatRequest) ApplyDefaults() {
	if r.Mode == "" {
		r.Mode = ModeSolve
	}
	if r.PlotMode == "" {
		r.PlotMode = PlotOnDemand
	}
	if r.ExplainStyle == "" {
		r.ExplainStyle = StyleIntuition
	}
	if r.ShowSteps == nil {
		t := true
		r.ShowSteps = &t
	}
}

// Steps reports whether a worked solution should show every step.
func (r *ChatRequest) Steps() bool {
	return r.ShowSteps == nil || *r.ShowSteps
}

// ChatResponse is the reply to a non-streaming chat request.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// SessionResponse carries a session handle.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// Health statuses.
const (
	HealthStatusOK    = "ok"
	HealthStatusError = "error"
)

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Model   string `json:"model,omitempty"`
	Message string `json:"message,omitempty"`
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType is the kind of a content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ImageSource is an inline base64 image.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentPart is one typed piece of a multi-part message.
type ContentPart struct {
	Type   PartType     `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart returns a base64 image content part.
func ImagePart(mediaType, data string) ContentPart {
	return ContentPart{Type: PartImage, Source: &ImageSource{Type: "base64", MediaType: mediaType, Data: data}}
}

// Message is one entry of a conversation. Its content is either plain text
// or a list of parts; in JSON it is a string in the first case and an
// array in the second.
type Message struct {
	Role  Role
	Text  string
	Parts []ContentPart
}

// TextMessage returns a plain-text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// PlainText returns the text of the message, joining the text parts of a
// multi-part message.
func (m Message) PlainText() string {
	if m.Parts == nil {
		return m.Text
	}
	var s string
	for _, p := range m.Parts {
		if p.Type == PartText {
			if s != "" {
				s += "\n"
			}
			s += p.Text
		}
	}
	return s
}

type messageJSON struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON encodes content as a string or a part array.
func (m Message) MarshalJSON() ([]byte, error) {
	var (
		content []byte
		err     error
	)
	if m.Parts != nil {
		content, err = json.Marshal(m.Parts)
	} else {
		content, err = json.Marshal(m.Text)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{Role: m.Role, Content: content})
}

// UnmarshalJSON accepts both content encodings.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message{Role: raw.Role}
	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	switch raw.Content[0] {
	case '"':
		return json.Unmarshal(raw.Content, &m.Text)
	case '[':
		return json.Unmarshal(raw.Content, &m.Parts)
	default:
		return errors.New("message content must be a string or an array")
	}
}

// Conversation is the stored history of one tutoring session.
type Conversation struct {
	SessionID    string    `json:"session_id"`
	Messages     []Message `json:"messages"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Trim keeps the conversation within maxMessages by dropping the oldest
// messages after the first two, which anchor the session. The most recent
// maxMessages-2 messages are kept.
func (c *Conversation) Trim(maxMessages int) {
	if maxMessages <= 2 || len(c.Messages) <= maxMessages {
		return
	}
	keep := maxMessages - 2
	trimmed := make([]Message, 0, maxMessages)
	trimmed = append(trimmed, c.Messages[:2]...)
	trimmed = append(trimmed, c.Messages[len(c.Messages)-keep:]...)
	c.Messages = trimmed
}
