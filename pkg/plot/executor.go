package plot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/observability"
)

const (
	// DefaultExecTimeout is the wall-clock limit for one script.
	DefaultExecTimeout = 15 * time.Second

	// DefaultMaxConcurrent bounds simultaneous interpreter subprocesses.
	DefaultMaxConcurrent = 4

	scriptName   = "script.py"
	artifactName = "plot.png"
)

// Result is the outcome of one execution. Image holds the base64-encoded
// PNG and is empty when nothing was rendered.
type Result struct {
	Image    string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// OK reports whether an image was produced.
func (r Result) OK() bool { return r.Image != "" }

// Executor runs a sanitized script and returns the rendered image.
// Implementations never fail: every problem is reported through a Result
// without an image.
type Executor interface {
	Execute(ctx context.Context, script Script) Result
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, script Script) Result

// Execute calls f(ctx, script).
func (f ExecutorFunc) Execute(ctx context.Context, script Script) Result { return f(ctx, script) }

// Harness wraps a script so that it renders off-screen into plot.png in the
// working directory.
func Harness(script Script) string {
	var b strings.Builder
	b.WriteString("import matplotlib\n")
	b.WriteString("matplotlib.use('Agg')\n")
	b.WriteString("import matplotlib.pyplot as plt\n")
	b.WriteString("import numpy as np\n")
	b.WriteString("\n# User code\n")
	b.WriteString(string(script))
	b.WriteString("\n\n# Save the figure\n")
	b.WriteString("plt.savefig('plot.png', dpi=100, bbox_inches='tight')\n")
	b.WriteString("plt.close()\n")
	return b.String()
}

// LocalExecutor runs scripts with a local Python interpreter, each in its
// own temporary directory.
type LocalExecutor struct {
	locator *Locator
	timeout time.Duration
	slots   *semaphore.Weighted
	logger  *slog.Logger
}

// LocalOption configures a LocalExecutor.
type LocalOption func(*LocalExecutor)

// WithTimeout overrides DefaultExecTimeout.
func WithTimeout(d time.Duration) LocalOption {
	return func(e *LocalExecutor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxConcurrent overrides DefaultMaxConcurrent.
func WithMaxConcurrent(n int) LocalOption {
	return func(e *LocalExecutor) {
		if n > 0 {
			e.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the logger used for execution failures.
func WithLogger(l *slog.Logger) LocalOption {
	return func(e *LocalExecutor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewLocalExecutor creates a LocalExecutor. A nil locator means
// DefaultLocator.
func NewLocalExecutor(locator *Locator, opts ...LocalOption) *LocalExecutor {
	if locator == nil {
		locator = DefaultLocator()
	}
	e := &LocalExecutor{
		locator: locator,
		timeout: DefaultExecTimeout,
		slots:   semaphore.NewWeighted(DefaultMaxConcurrent),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ Executor = (*LocalExecutor)(nil)

// Execute runs script under the harness and returns the rendered PNG.
// The image counts even when the interpreter exits non-zero.
func (e *LocalExecutor) Execute(ctx context.Context, script Script) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("plot execution panicked", "panic", fmt.Sprint(r))
			res = Result{ExitCode: -1, Stderr: fmt.Sprint(r)}
		}
		res.Duration = time.Since(start)
		RecordExecution("local", res)
	}()

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return Result{ExitCode: -1, Stderr: "waiting for execution slot: " + err.Error()}
	}
	defer e.slots.Release(1)

	tmpDir, err := os.MkdirTemp("", "nexmath-plot-*")
	if err != nil {
		e.logger.Error("plot execution setup failed", "error", err)
		return Result{ExitCode: -1, Stderr: err.Error()}
	}
	defer os.RemoveAll(tmpDir)

	scriptPath := filepath.Join(tmpDir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(Harness(script)), 0o644); err != nil {
		e.logger.Error("plot execution setup failed", "error", err)
		return Result{ExitCode: -1, Stderr: err.Error()}
	}

	interp := e.locator.Locate(ctx)
	debug.Script("sandbox", "running plot script", string(script))

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, interp.Path, scriptName)
	cmd.Dir = tmpDir
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	res = Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case runErr == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.TimedOut = true
		if res.Stderr == "" {
			res.Stderr = fmt.Sprintf("execution timed out after %s", e.timeout)
		}
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = runErr.Error()
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(tmpDir, artifactName)); err == nil {
		res.Image = base64.StdEncoding.EncodeToString(data)
		debug.Log("plot", "plot rendered",
			"interpreter", interp.Path,
			"bytes", len(data),
			"exit_code", res.ExitCode,
		)
		return res
	}

	e.logger.Warn("plot execution produced no image",
		"interpreter", interp.Path,
		"exit_code", res.ExitCode,
		"timed_out", res.TimedOut,
		"stderr", debug.Truncate(res.Stderr, 500),
		"stdout", debug.Truncate(res.Stdout, 200),
	)
	return res
}

// RecordExecution counts one execution outcome for the named executor.
func RecordExecution(executor string, res Result) {
	outcome := "failed"
	switch {
	case res.OK():
		outcome = "success"
	case res.TimedOut:
		outcome = "timeout"
	}
	observability.PlotExecutionsTotal.WithLabelValues(executor, outcome).Inc()
	observability.PlotExecutionDuration.WithLabelValues(executor).Observe(res.Duration.Seconds())
}
