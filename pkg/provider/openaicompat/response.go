package openaicompat

import (
	"log/slog"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/provider"
)

// TranslateResponse converts a Chat Completions response into a provider
// response using choices[0]. A response without choices is a model error.
func TranslateResponse(resp *ChatCompletionResponse) (*provider.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, api.NewModelError("backend returned no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		slog.Warn("backend reply truncated at max_tokens", "model", resp.Model)
	}

	pr := &provider.Response{Model: resp.Model}
	if choice.Message.Content != nil {
		pr.Text = *choice.Message.Content
	}
	if resp.Usage != nil {
		pr.Usage = provider.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return pr, nil
}
