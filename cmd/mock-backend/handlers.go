package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nexmath/nexmath/pkg/tutor"
)

const mockModel = "mock-model"

const fencedPlotReply = "Here is the graph of $f(x) = x^2$ on $[-3, 3]$:\n\n" +
	"```python\n" +
	"x = np.linspace(-3, 3, 200)\n" +
	"plt.plot(x, x**2, label='$x^2$')\n" +
	"plt.axhline(0, color='gray', linewidth=0.5)\n" +
	"plt.legend()\n" +
	"plt.grid(True)\n" +
	"plt.show()\n" +
	"```\n\n" +
	"The vertex sits at the origin, and the parabola opens upward."

const unfencedPlotReply = "Here is the graph:\n\n" +
	"import matplotlib.pyplot as plt\n" +
	"import numpy as np\n" +
	"x = np.linspace(0, 2 * np.pi, 100)\n" +
	"plt.plot(x, np.sin(x))\n" +
	"plt.title('sin(x)')\n" +
	"\n" +
	"The sine curve repeats every $2\\pi$."

const explainReply = "The derivative of $x^2$ is $2x$.\n\n" +
	"$$\\frac{d}{dx} x^2 = \\lim_{h \\to 0} \\frac{(x+h)^2 - x^2}{h} = 2x$$\n\n" +
	"**Key Takeaway:** the power rule brings the exponent down and lowers it by one."

const imageReply = "I can see the problem in your image: $\\int_0^1 x^2 \\, dx$.\n\n" +
	"Using the power rule, $\\int x^2 \\, dx = \\frac{x^3}{3}$, so the value is $\\frac{1}{3}$."

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Handler ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBackendError(w, http.StatusBadRequest, "invalid request", "invalid_request_error")
		return
	}

	lastMsg := lastUserMessage(&req)
	if strings.Contains(strings.ToLower(lastMsg), "fail upstream") {
		writeBackendError(w, http.StatusInternalServerError, "simulated upstream failure", "server_error")
		return
	}

	model := req.Model
	if model == "" {
		model = mockModel
	}
	text := replyFor(&req)

	if req.Stream {
		handleStreaming(w, model, text)
		return
	}

	words := len(strings.Fields(text))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{{
			Message:      chatMsg{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: words, TotalTokens: 10 + words},
	})
}

// replyFor picks the canned reply for the last user message.
func replyFor(req *chatRequest) string {
	msg := lastUserMessage(req)
	switch {
	case strings.Contains(strings.ToLower(msg), "unfenced"):
		return unfencedPlotReply
	case tutor.WantsPlot(msg):
		return fencedPlotReply
	case hasImageContent(req):
		return imageReply
	default:
		return explainReply
	}
}

func writeBackendError(w http.ResponseWriter, status int, message, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message, "type": typ},
	})
}

// --- Streaming ---

func handleStreaming(w http.ResponseWriter, model, text string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeSSEChunk(w, model, map[string]any{"role": "assistant"}, nil)
	flusher.Flush()

	chunks := splitChunks(text)
	for _, c := range chunks {
		writeSSEChunk(w, model, map[string]any{"content": c}, nil)
		flusher.Flush()
	}

	stop := "stop"
	writeSSEChunk(w, model, map[string]any{}, &stop)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// splitChunks cuts text after every space and newline so that fences and
// LaTeX delimiters end up split across chunks, as with real backends.
func splitChunks(text string) []string {
	var chunks []string
	start := 0
	for i, r := range text {
		if r == ' ' || r == '\n' {
			chunks = append(chunks, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}

func writeSSEChunk(w http.ResponseWriter, model string, delta map[string]any, finish *string) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// --- Models endpoint ---

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": mockModel, "object": "model", "owned_by": "nexmath-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		switch v := req.Messages[i].Content.(type) {
		case string:
			return v
		case []any:
			for _, part := range v {
				if m, ok := part.(map[string]any); ok && m["type"] == "text" {
					if text, ok := m["text"].(string); ok {
						return text
					}
				}
			}
		}
		return ""
	}
	return ""
}

func hasImageContent(req *chatRequest) bool {
	for _, msg := range req.Messages {
		if msg.Role != "user" {
			continue
		}
		parts, ok := msg.Content.([]any)
		if !ok {
			continue
		}
		for _, part := range parts {
			if m, ok := part.(map[string]any); ok && m["type"] == "image_url" {
				return true
			}
		}
	}
	return false
}
