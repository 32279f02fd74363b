// Package provider defines the interface the tutoring engine uses to talk
// to a language model backend. Adapters translate Request, Response, and
// Event to and from their own wire protocol; pkg/provider/openaicompat is
// the Chat Completions adapter.
package provider
