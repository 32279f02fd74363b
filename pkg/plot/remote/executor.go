package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/plot"
)

// executorName labels remote runs in the plot metrics.
const executorName = "remote"

// transportMargin is added to the script timeout for the HTTP round trip.
const transportMargin = 10 * time.Second

// Executor runs scripts on a sandbox server.
type Executor struct {
	acquirer Acquirer
	timeout  time.Duration
	client   *retryablehttp.Client
	logger   *slog.Logger
}

var _ plot.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets the script timeout sent to the server.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetries sets how often a request is retried when the sandbox is at
// capacity or unreachable.
func WithRetries(n int) Option {
	return func(e *Executor) {
		if n >= 0 {
			e.client.RetryMax = n
		}
	}
}

// WithLogger sets the logger used for failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an Executor that runs scripts on sandboxes from a.
func NewExecutor(a Acquirer, opts ...Option) *Executor {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	e := &Executor{
		acquirer: a,
		timeout:  plot.DefaultExecTimeout,
		client:   rc,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.client.HTTPClient.Timeout = e.timeout + transportMargin
	return e
}

// Execute sends script to a sandbox and returns its result. Any failure
// along the way becomes a result without an image.
func (e *Executor) Execute(ctx context.Context, script plot.Script) (res plot.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("remote plot execution panicked", "panic", fmt.Sprint(r))
			res = plot.Result{ExitCode: -1, Stderr: fmt.Sprint(r)}
		}
		if res.Duration == 0 {
			res.Duration = time.Since(start)
		}
		plot.RecordExecution(executorName, res)
		if !res.OK() {
			e.logger.Warn("remote plot execution produced no image",
				"exit_code", res.ExitCode,
				"timed_out", res.TimedOut,
				"stderr", debug.Truncate(res.Stderr, 500),
			)
		}
	}()

	sandboxURL, release, err := e.acquirer.Acquire(ctx)
	if err != nil {
		return plot.Result{ExitCode: -1, Stderr: "acquiring sandbox: " + err.Error()}
	}
	defer release()
	debug.Script("sandbox", "sending plot script", string(script))

	resp, err := e.post(ctx, sandboxURL, &ExecuteRequest{
		Code:           string(script),
		TimeoutSeconds: timeoutSeconds(e.timeout),
	})
	if err != nil {
		return plot.Result{ExitCode: -1, Stderr: err.Error()}
	}

	debug.Log("sandbox", "remote execution finished",
		"url", sandboxURL,
		"status", resp.Status,
		"exit_code", resp.ExitCode,
		"ms", resp.ExecutionTimeMs,
	)
	return plot.Result{
		Image:    resp.Image,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: resp.ExitCode,
		Duration: time.Duration(resp.ExecutionTimeMs) * time.Millisecond,
		TimedOut: resp.Status == StatusTimeout,
	}
}

// timeoutSeconds converts d to whole seconds, rounding up. Zero would make
// the server apply its own default.
func timeoutSeconds(d time.Duration) int {
	return max(1, int((d+time.Second-1)/time.Second))
}

func (e *Executor) post(ctx context.Context, sandboxURL string, req *ExecuteRequest) (*ExecuteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(sandboxURL, "/")+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("sandbox at capacity (HTTP 429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, debug.Truncate(string(respBody), 200))
	}

	var out ExecuteResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
