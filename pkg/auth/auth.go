package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Decision is the outcome of one authentication attempt.
type Decision int

const (
	// Yes means the credentials are valid. The chain stops.
	Yes Decision = iota

	// No means credentials are present but invalid. The chain stops and
	// the request is rejected.
	No

	// Abstain means the authenticator does not handle these credentials.
	// The chain moves on.
	Abstain
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	}
	return "unknown"
}

// Result carries the outcome of an authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set when Decision is Yes
	Err      error     // set when Decision is No
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject identifies the caller and keys the rate limiter.
	Subject string

	// Tier selects the rate limit. Empty means DefaultTier.
	Tier string

	// Tenant scopes session storage. Empty means the shared namespace.
	Tenant string

	// Scopes lists granted authorization scopes, if the credential has any.
	Scopes []string
}

// DefaultTier is the rate limit tier of identities that do not name one.
const DefaultTier = "default"

// EffectiveTier returns Tier, or DefaultTier when it is empty.
func (id *Identity) EffectiveTier() string {
	if id == nil || id.Tier == "" {
		return DefaultTier
	}
	return id.Tier
}

// Anonymous returns the identity used when no credentials are required.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", Tier: DefaultTier}
}

// Authenticator examines request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, r *http.Request) Result

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) Result {
	return f(ctx, r)
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain evaluates authenticators in order.
type Chain struct {
	authenticators []Authenticator
	fallback       Decision
}

// NewChain creates a Chain. fallback is used when every authenticator
// abstains: Yes admits the request as Anonymous, anything else rejects it.
func NewChain(fallback Decision, authenticators ...Authenticator) *Chain {
	return &Chain{authenticators: authenticators, fallback: fallback}
}

// Authenticate returns the first Yes or No vote, or the fallback.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.fallback == Yes {
		return Result{Decision: Yes, Identity: Anonymous()}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken returns the token of a "Bearer" Authorization header. ok is
// false when there is no such header, so the caller can abstain; an empty
// token with ok true is a malformed credential.
func BearerToken(r *http.Request) (token string, ok bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}
