package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/provider"
)

const (
	defaultName      = "openaicompat"
	defaultTimeout   = 120 * time.Second
	defaultMaxTokens = 4096
	completionsPath  = "/v1/chat/completions"
)

// Config configures a Client.
type Config struct {
	// Name identifies the provider in logs and metrics (default "openaicompat").
	Name string

	// BaseURL is the backend root, e.g. "https://api.openai.com".
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is the model name sent with every request.
	Model string

	// MaxTokens caps the reply length (default 4096).
	MaxTokens int

	// Timeout applies to non-streaming calls (default 120s).
	Timeout time.Duration

	// MaxRetries is the number of retries for non-streaming calls.
	MaxRetries int

	// RequireAPIKey makes HealthCheck fail while APIKey is empty.
	RequireAPIKey bool
}

// Client is a provider.Provider for Chat Completions backends.
type Client struct {
	name      string
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	needKey   bool

	retry  *retryablehttp.Client
	stream *http.Client
}

var (
	_ provider.Provider      = (*Client)(nil)
	_ provider.HealthChecker = (*Client)(nil)
)

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = slog.Default()
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		name:      cfg.Name,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		needKey:   cfg.RequireAPIKey,
		retry:     rc,
		// Streams can outlive any fixed timeout; ctx bounds them instead.
		stream: &http.Client{Transport: rc.HTTPClient.Transport},
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return c.name }

// Model returns the configured model.
func (c *Client) Model() string { return c.model }

func (c *Client) prepare(req *provider.Request, stream bool) ([]byte, error) {
	r := *req
	if r.Model == "" {
		r.Model = c.model
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = c.maxTokens
	}
	body, err := json.Marshal(TranslateToChat(&r, stream))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}
	debug.Log("provider", "chat completion request",
		"model", r.Model, "messages", len(r.Messages), "stream", stream, "bytes", len(body))
	return body, nil
}

func (c *Client) setHeaders(h http.Header) {
	h.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		h.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Complete performs a non-streaming call with retries.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body, err := c.prepare(req, false)
	if err != nil {
		return nil, err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, body)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	c.setHeaders(httpReq.Header)

	httpResp, err := c.retry.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewModelError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}
	return TranslateResponse(&chatResp)
}

// Stream performs a streaming call. Errors before the first byte of the
// stream are returned directly; later failures arrive as an Error event.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	body, err := c.prepare(req, true)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	c.setHeaders(httpReq.Header)
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.stream.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, MapNetworkError(err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, MapHTTPError(httpResp)
	}

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		ParseSSEStream(ctx, httpResp.Body, ch)
	}()
	return ch, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.retry.HTTPClient.CloseIdleConnections()
	return nil
}

// HealthCheck reports a missing API key when one is required. It does not
// contact the backend.
func (c *Client) HealthCheck(context.Context) error {
	if c.needKey && c.apiKey == "" {
		return errors.New("API key not configured")
	}
	return nil
}
