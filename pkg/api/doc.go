// Package api defines the wire types of the nexmath tutoring API.
//
// The types mirror the JSON the browser client exchanges with the server:
// chat requests carrying a question and an optional image, chat responses,
// SSE stream events, session handles, and structured errors. Conversation
// and Message are also the persisted form of a tutoring session, so every
// storage backend serializes them the same way.
//
// Core types:
//   - [ChatRequest]: one student turn with its tutoring options
//   - [ChatResponse]: the rendered assistant reply
//   - [StreamEvent]: one SSE event of a streaming reply
//   - [Conversation], [Message], [ContentPart]: stored session history
//   - [APIError]: structured error with type, param, and message
//
// The package performs no I/O.
package api
