// Package openaicompat is a provider.Provider for any OpenAI-compatible
// Chat Completions backend (OpenAI, vLLM, LiteLLM, Ollama, or an
// Anthropic-compatible gateway). It serializes the tutoring conversation,
// parses complete and streamed replies, and maps backend failures to
// api.APIError values.
//
// Non-streaming calls go through hashicorp/go-retryablehttp and are retried
// on connection errors, 429, and 5xx responses. Streaming calls are not
// retried.
package openaicompat
