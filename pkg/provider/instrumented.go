package provider

import (
	"context"
	"errors"
	"time"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/observability"
)

// Instrumented wraps a Provider and records request counts, latency, and
// token usage in the nexmath_provider_* metrics.
type Instrumented struct {
	Provider
}

// WithMetrics returns p wrapped with metrics recording.
func WithMetrics(p Provider) *Instrumented {
	return &Instrumented{Provider: p}
}

// Complete records one request.
func (i *Instrumented) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := i.Provider.Complete(ctx, req)
	i.record(start, err)
	if err == nil {
		i.recordUsage(&resp.Usage)
	}
	return resp, err
}

// Stream records one request when the stream ends. Latency covers the
// whole stream.
func (i *Instrumented) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	start := time.Now()
	upstream, err := i.Provider.Stream(ctx, req)
	if err != nil {
		i.record(start, err)
		return nil, err
	}

	out := make(chan Event, cap(upstream))
	go func() {
		defer close(out)
		var streamErr error
		for ev := range upstream {
			switch ev.Type {
			case EventError:
				streamErr = ev.Err
			case EventDone:
				i.recordUsage(ev.Usage)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				streamErr = ctx.Err()
				i.record(start, streamErr)
				// Drain so the upstream goroutine can exit.
				for range upstream {
				}
				return
			}
		}
		i.record(start, streamErr)
	}()
	return out, nil
}

func (i *Instrumented) record(start time.Time, err error) {
	name := i.Name()
	observability.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	observability.ProviderRequestsTotal.WithLabelValues(name, statusLabel(err)).Inc()
}

func (i *Instrumented) recordUsage(u *Usage) {
	if u == nil {
		return
	}
	name := i.Name()
	observability.ProviderTokensTotal.WithLabelValues(name, "input").Add(float64(u.InputTokens))
	observability.ProviderTokensTotal.WithLabelValues(name, "output").Add(float64(u.OutputTokens))
}

func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Type)
	}
	return "error"
}

// HealthCheck forwards to the wrapped provider when it implements
// HealthChecker.
func (i *Instrumented) HealthCheck(ctx context.Context) error {
	if hc, ok := i.Provider.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
