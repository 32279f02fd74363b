// Package auth authenticates API callers and limits their request rate.
//
// Authenticators vote on each request: Yes (valid credentials, with an
// identity), No (credentials present but invalid), or Abstain (no
// credentials this authenticator understands). A Chain asks each in turn
// and falls back to a configured decision when all abstain, so a
// deployment without credentials behaves as "everyone is anonymous".
//
// Middleware runs the chain in front of the HTTP handlers, applies the
// per-subject rate limit, and puts the identity and its tenant into the
// request context, where the session stores pick the tenant up.
package auth
