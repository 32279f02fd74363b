// Package tutor implements the tutoring turn: it frames the student's
// message with the mode instructions, keeps the per-session history, calls
// the chat-completion provider, and renders plotting code in the reply.
//
// Engine implements transport.ChatHandler and transport.SessionManager. Its
// collaborators are interfaces (provider.Provider, transport.ConversationStore,
// and a plot Rewriter), so the engine runs the same over every backend and
// store. The stored history always keeps the raw model text; only the copy
// returned to the client carries rendered plot images.
package tutor
