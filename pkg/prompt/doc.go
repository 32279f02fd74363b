// Package prompt compiles the tutoring system prompt and the per-turn
// instructions that frame a student's message for the model.
//
// The system prompt is assembled from markdown rule files embedded in the
// binary. The per-turn text depends on the request options (mode, explain
// follow-up, step visibility, explanation style, exam grading) and is built
// by BuildUserText.
package prompt
