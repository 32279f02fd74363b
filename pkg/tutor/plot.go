package tutor

import (
	"context"
	"regexp"

	"github.com/nexmath/nexmath/pkg/api"
)

// Rewriter renders plotting code in a reply. *plot.Rewriter implements it.
type Rewriter interface {
	Rewrite(ctx context.Context, text string, allowPlots bool) string
}

type nopRewriter struct{}

func (nopRewriter) Rewrite(_ context.Context, text string, _ bool) string { return text }

var plotRequest = regexp.MustCompile(`(?i)\b(plot|graph|visual|visualize|chart|draw)\b`)

// WantsPlot reports whether a student message asks for a visualization.
func WantsPlot(message string) bool {
	return message != "" && plotRequest.MatchString(message)
}

// allowPlots is the rendering gate for one turn.
func allowPlots(mode api.PlotMode, message string) bool {
	return mode == api.PlotAuto || WantsPlot(message)
}
