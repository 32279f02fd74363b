package openaicompat

import (
	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/provider"
)

// TranslateToChat converts a provider request into a Chat Completions
// request. The system prompt becomes the first message. Messages with only
// text are sent with string content; messages carrying an image are sent
// as content parts with the image as a data URI.
func TranslateToChat(req *provider.Request, stream bool) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:  req.Model,
		N:      1,
		Stream: stream,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		cr.MaxTokens = &maxTokens
	}
	if stream {
		cr.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
	}

	if req.System != "" {
		cr.Messages = append(cr.Messages, ChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, translateMessage(m))
	}
	return cr
}

func translateMessage(m api.Message) ChatMessage {
	if !hasImage(m) {
		return ChatMessage{Role: string(m.Role), Content: m.PlainText()}
	}

	parts := make([]ChatContentPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case api.PartImage:
			if p.Source == nil {
				continue
			}
			parts = append(parts, ChatContentPart{
				Type:     "image_url",
				ImageURL: &ChatImageURL{URL: DataURI(p.Source.MediaType, p.Source.Data)},
			})
		case api.PartText:
			parts = append(parts, ChatContentPart{Type: "text", Text: p.Text})
		}
	}
	return ChatMessage{Role: string(m.Role), Content: parts}
}

func hasImage(m api.Message) bool {
	for _, p := range m.Parts {
		if p.Type == api.PartImage {
			return true
		}
	}
	return false
}

// DataURI builds a base64 data URI.
func DataURI(mediaType, data string) string {
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return "data:" + mediaType + ";base64," + data
}
