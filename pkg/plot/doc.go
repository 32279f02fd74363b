// Package plot renders plotting code embedded in model replies.
//
// A model reply may contain Python code that draws a figure with matplotlib.
// The Rewriter finds those regions (fenced code blocks first, an unfenced
// heuristic line range as a fallback), sanitizes each one, runs it in an
// isolated interpreter subprocess, and replaces the region with an inline
// base64 PNG image marker. Regions that fail to render are left untouched,
// so the reply degrades to plain text instead of failing the request.
//
// The pipeline is made of small pieces that can be used on their own:
//
//   - Locator finds a Python interpreter that can import matplotlib and numpy.
//   - Sanitizer neutralizes blocking show calls and comments out prose.
//   - Executor runs one sanitized script and returns the rendered image.
//   - Extract yields the code regions that carry a plotting signal.
//   - Rewriter ties them together.
//
// Nothing in this package returns an error to the caller on a rendering
// failure. Failures are logged and counted, and the text passes through.
package plot
