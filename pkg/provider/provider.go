package provider

import "context"

// Provider abstracts a language model backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier used in logs and metrics.
	Name() string

	// Model returns the default model name.
	Model() string

	// Complete performs non-streaming inference.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream performs streaming inference. The channel is closed by the
	// provider after a Done or Error event, or when ctx is cancelled.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// Close releases provider resources.
	Close() error
}

// HealthChecker is implemented by providers that can tell whether they are
// able to serve requests, for example whether credentials are configured.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
