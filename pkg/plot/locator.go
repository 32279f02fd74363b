package plot

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/observability"
)

// DefaultProbeTimeout bounds a single interpreter probe.
const DefaultProbeTimeout = 5 * time.Second

// probeArgs ask a candidate interpreter to import both plotting libraries.
var probeArgs = []string{"-c", "import matplotlib, numpy"}

// Interpreter is a resolved Python interpreter. Verified is false when no
// candidate passed the probe and the first candidate was chosen anyway.
type Interpreter struct {
	Path     string
	Verified bool
}

// ProbeFunc runs the import probe against one candidate.
type ProbeFunc func(ctx context.Context, candidate string) error

// Locator resolves the interpreter used for plot execution. The first
// resolution is cached for the lifetime of the Locator. Concurrent first
// calls may both probe; they reach the same answer, and the first stored
// value wins.
type Locator struct {
	candidates []string
	timeout    time.Duration
	probe      ProbeFunc

	resolved atomic.Pointer[Interpreter]
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) LocatorOption {
	return func(l *Locator) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithProbe replaces the subprocess probe. Used by tests.
func WithProbe(p ProbeFunc) LocatorOption {
	return func(l *Locator) { l.probe = p }
}

// NewLocator creates a Locator over the given candidates, tried in order.
// Empty entries are skipped. With no usable candidates it falls back to
// DefaultCandidates. Relative paths are made absolute.
func NewLocator(candidates []string, opts ...LocatorOption) *Locator {
	var cands []string
	for _, c := range candidates {
		if c != "" {
			cands = append(cands, absCandidate(c))
		}
	}
	if len(cands) == 0 {
		cands = DefaultCandidates("")
	}
	l := &Locator{
		candidates: cands,
		timeout:    DefaultProbeTimeout,
		probe:      runProbe,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// absCandidate resolves a relative interpreter path against the working
// directory, since scripts run with the temp directory as their working
// directory. Bare names are left for PATH lookup.
func absCandidate(c string) string {
	if filepath.IsAbs(c) || !strings.ContainsAny(c, "/"+string(filepath.Separator)) {
		return c
	}
	if abs, err := filepath.Abs(c); err == nil {
		return abs
	}
	return c
}

// DefaultCandidates returns the interpreter search order: the configured
// interpreter (or NEXMATH_PYTHON), then python3, then python.
func DefaultCandidates(configured string) []string {
	var cands []string
	if configured == "" {
		configured = os.Getenv("NEXMATH_PYTHON")
	}
	if configured != "" {
		cands = append(cands, configured)
	}
	for _, c := range []string{"python3", "python"} {
		if c != configured {
			cands = append(cands, c)
		}
	}
	return cands
}

var defaultLocator = sync.OnceValue(func() *Locator {
	return NewLocator(DefaultCandidates(""))
})

// DefaultLocator returns the process-wide Locator.
func DefaultLocator() *Locator {
	return defaultLocator()
}

// Locate returns the interpreter to use. It never fails: when every probe
// fails, the first candidate is returned unverified so that execution
// attempts surface the real error in their stderr.
func (l *Locator) Locate(ctx context.Context) Interpreter {
	if in := l.resolved.Load(); in != nil {
		return *in
	}

	chosen := Interpreter{Path: l.candidates[0]}
	for _, cand := range l.candidates {
		pctx, cancel := context.WithTimeout(ctx, l.timeout)
		err := l.probe(pctx, cand)
		cancel()
		if err == nil {
			observability.InterpreterProbesTotal.WithLabelValues("ok").Inc()
			chosen = Interpreter{Path: cand, Verified: true}
			break
		}
		observability.InterpreterProbesTotal.WithLabelValues("failed").Inc()
		debug.Log("plot", "interpreter probe failed", "candidate", cand, "error", err)
	}

	// A cancelled caller says nothing about the candidates; don't cache.
	if !chosen.Verified && ctx.Err() != nil {
		return chosen
	}

	if !chosen.Verified {
		slog.Warn("no interpreter with matplotlib and numpy found, using first candidate",
			"candidate", chosen.Path,
			"tried", len(l.candidates),
		)
	}

	l.resolved.CompareAndSwap(nil, &chosen)
	return *l.resolved.Load()
}

func runProbe(ctx context.Context, candidate string) error {
	return exec.CommandContext(ctx, candidate, probeArgs...).Run()
}
