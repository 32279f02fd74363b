package plot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nexmath/nexmath/pkg/debug"
)

// ImageMarker returns the HTML fragment that replaces a fenced block.
func ImageMarker(image string) string {
	return "<div class=\"plot-container\">\n" +
		"<img src=\"data:image/png;base64," + image + "\" alt=\"Plot\" class=\"matplotlib-plot\">\n" +
		"</div>"
}

// InlineImageMarker returns the single-line fragment that replaces an
// unfenced snippet.
func InlineImageMarker(image string) string {
	return "<div class=\"plot-container\">" +
		"<img src=\"data:image/png;base64," + image + "\" alt=\"Plot\" class=\"matplotlib-plot\">" +
		"</div>"
}

// Rewriter replaces plotting code in a reply with rendered images.
type Rewriter struct {
	sanitizer Sanitizer
	executor  Executor
	logger    *slog.Logger
}

// NewRewriter creates a Rewriter that renders through executor.
func NewRewriter(sanitizer Sanitizer, executor Executor, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{sanitizer: sanitizer, executor: executor, logger: logger}
}

// Rewrite returns text with every renderable plotting block replaced by an
// image marker. With allowPlots false the text is returned untouched and
// nothing is executed. Blocks that fail to render keep their original text.
func (rw *Rewriter) Rewrite(ctx context.Context, text string, allowPlots bool) string {
	if !allowPlots || text == "" {
		return text
	}

	var (
		out      strings.Builder
		last     int
		rendered int
		failed   int
	)
	for block := range Extract(text) {
		if !HasSignal(block.Code) {
			continue
		}
		res := rw.executor.Execute(ctx, rw.sanitizer.Sanitize(block.Code))
		if !res.OK() {
			failed++
			continue
		}
		rendered++
		if block.Kind == Fallback {
			// Extract never yields a fallback block next to fenced ones.
			debug.Log("plot", "reply rewritten", "rendered", rendered, "kind", "fallback")
			return spliceLines(text, block, res.Image)
		}
		out.WriteString(text[last:block.Start])
		out.WriteString(ImageMarker(res.Image))
		last = block.End
	}

	if rendered > 0 || failed > 0 {
		debug.Log("plot", "reply rewritten", "rendered", rendered, "failed", failed)
	}
	if rendered == 0 {
		return text
	}
	out.WriteString(text[last:])
	return out.String()
}

// spliceLines replaces the line range of an unfenced block with the inline
// marker on a line of its own, then trims the result.
func spliceLines(text string, b CodeBlock, image string) string {
	before := strings.TrimSuffix(text[:b.Start], "\n")
	before = strings.TrimSuffix(before, "\r")
	after := text[b.End:]
	after = strings.TrimPrefix(after, "\r")
	after = strings.TrimPrefix(after, "\n")
	return strings.TrimSpace(before + "\n" + InlineImageMarker(image) + "\n" + after)
}
