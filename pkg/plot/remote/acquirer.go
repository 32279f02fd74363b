package remote

import (
	"context"
	"errors"
)

// Acquirer abstracts sandbox acquisition. Implementations exist for a
// static URL and for Kubernetes SandboxClaims.
type Acquirer interface {
	// Acquire returns a sandbox URL to use for one execution. release must
	// be called when the execution is done.
	Acquire(ctx context.Context) (sandboxURL string, release func(), err error)
}

// StaticAcquirer always returns the same sandbox URL.
type StaticAcquirer struct {
	URL string
}

var _ Acquirer = StaticAcquirer{}

// Acquire returns the configured URL.
func (s StaticAcquirer) Acquire(context.Context) (string, func(), error) {
	if s.URL == "" {
		return "", nil, errors.New("no sandbox URL configured")
	}
	return s.URL, func() {}, nil
}
