package plot

import (
	"context"
	"strings"
	"sync"
	"testing"
)

// fakeExecutor renders every script that does not contain "FAIL". The image
// is the first word of the script's first line, so tests can tell blocks
// apart in the output.
type fakeExecutor struct {
	mu      sync.Mutex
	scripts []Script
}

func (f *fakeExecutor) Execute(_ context.Context, s Script) Result {
	f.mu.Lock()
	f.scripts = append(f.scripts, s)
	f.mu.Unlock()
	if strings.Contains(string(s), "FAIL") {
		return Result{ExitCode: 1, Stderr: "Traceback"}
	}
	first := strings.SplitN(strings.TrimSpace(string(s)), "\n", 2)[0]
	return Result{Image: "IMG[" + first + "]"}
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scripts)
}

func newTestRewriter() (*Rewriter, *fakeExecutor) {
	fe := &fakeExecutor{}
	return NewRewriter(NewSanitizer(), fe, nil), fe
}

func TestRewriteGateOffIsIdentity(t *testing.T) {
	rw, fe := newTestRewriter()
	text := "```python\nplt.plot([1, 2])\n```"
	if got := rw.Rewrite(context.Background(), text, false); got != text {
		t.Errorf("Rewrite with plots disabled changed the text: %q", got)
	}
	if fe.calls() != 0 {
		t.Errorf("executor called %d times with plots disabled", fe.calls())
	}
}

func TestRewriteTwoFencedBlocksInOrder(t *testing.T) {
	rw, fe := newTestRewriter()
	text := "First:\n```python\nplt.plot([1])\n```\nSecond:\n```python\nplt.bar([2], [3])\n```\nDone."

	got := rw.Rewrite(context.Background(), text, true)

	want := "First:\n" + ImageMarker("IMG[plt.plot([1])]") +
		"\nSecond:\n" + ImageMarker("IMG[plt.bar([2], [3])]") +
		"\nDone."
	if got != want {
		t.Errorf("Rewrite =\n%s\nwant\n%s", got, want)
	}
	if fe.calls() != 2 {
		t.Errorf("executor called %d times, want 2", fe.calls())
	}
	if strings.Contains(got, "```") {
		t.Error("fences left in output")
	}
}

func TestRewriteFailedBlockKeepsOriginalText(t *testing.T) {
	rw, _ := newTestRewriter()
	failing := "```python\nplt.plot(FAIL)\n```"
	text := failing + "\nthen\n```python\nplt.plot([1])\n```"

	got := rw.Rewrite(context.Background(), text, true)

	if !strings.HasPrefix(got, failing+"\nthen\n") {
		t.Errorf("failed block not preserved verbatim: %q", got)
	}
	if !strings.HasSuffix(got, ImageMarker("IMG[plt.plot([1])]")) {
		t.Errorf("second block not rendered: %q", got)
	}
}

func TestRewriteAllFailedReturnsInput(t *testing.T) {
	rw, fe := newTestRewriter()
	text := "Look:\n```python\nplt.plot(FAIL)\n```\nimport matplotlib\nplt.plot([1])"
	if got := rw.Rewrite(context.Background(), text, true); got != text {
		t.Errorf("Rewrite = %q, want input unchanged", got)
	}
	// The fenced block carried a signal, so no fallback attempt is made.
	if fe.calls() != 1 {
		t.Errorf("executor called %d times, want 1", fe.calls())
	}
}

func TestRewriteLeavesNonPlotBlocks(t *testing.T) {
	rw, fe := newTestRewriter()
	text := "```python\nprint(2 + 2)\n```"
	if got := rw.Rewrite(context.Background(), text, true); got != text {
		t.Errorf("non-plot block rewritten: %q", got)
	}
	if fe.calls() != 0 {
		t.Errorf("executor called for a non-plot block")
	}
}

func TestRewriteSanitizesBeforeExecuting(t *testing.T) {
	rw, fe := newTestRewriter()
	text := "```python\nx = [1, 2, 3]\nplt.plot(x, x)\nplt.show()\nWe see a line.\n```"
	rw.Rewrite(context.Background(), text, true)

	if fe.calls() != 1 {
		t.Fatalf("executor called %d times", fe.calls())
	}
	script := string(fe.scripts[0])
	if strings.Contains(script, "plt.show()") {
		t.Error("show call reached the executor")
	}
	if !strings.Contains(script, "# We see a line.") {
		t.Errorf("prose not commented out: %q", script)
	}
}

func TestRewriteFallback(t *testing.T) {
	rw, _ := newTestRewriter()
	text := "Here you go:\nimport matplotlib.pyplot as plt\nplt.plot([1, 4, 9])\nThe curve grows quadratically."

	got := rw.Rewrite(context.Background(), text, true)

	want := "Here you go:\n" +
		InlineImageMarker("IMG[import matplotlib.pyplot as plt]") +
		"\nThe curve grows quadratically."
	if got != want {
		t.Errorf("Rewrite =\n%q\nwant\n%q", got, want)
	}
}

func TestRewriteFallbackAtStartIsTrimmed(t *testing.T) {
	rw, _ := newTestRewriter()
	text := "plt.plot([1, 2])\n\nDone.\n"
	want := InlineImageMarker("IMG[plt.plot([1, 2])]") + "\nDone."
	if got := rw.Rewrite(context.Background(), text, true); got != want {
		t.Errorf("Rewrite = %q, want %q", got, want)
	}
}

func TestRewriteFallbackBlankGaps(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "two blank lines absorbed before prose",
			text: "Here:\nimport matplotlib.pyplot as plt\nplt.plot([1])\n\n\nThat was a line.\nAnd more prose.",
			want: "Here:\n" + InlineImageMarker("IMG[import matplotlib.pyplot as plt]") + "\nThat was a line.\nAnd more prose.",
		},
		{
			name: "prose line between code stays in the block",
			text: "import numpy as np\nNow plot it.\n\nplt.plot(np.arange(3))\nThat is all.\nBye.",
			want: InlineImageMarker("IMG[import numpy as np]") + "\nThat is all.\nBye.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw, _ := newTestRewriter()
			if got := rw.Rewrite(context.Background(), tt.text, true); got != tt.want {
				t.Errorf("Rewrite =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestImageMarkers(t *testing.T) {
	if got, want := ImageMarker("QUJD"), "<div class=\"plot-container\">\n<img src=\"data:image/png;base64,QUJD\" alt=\"Plot\" class=\"matplotlib-plot\">\n</div>"; got != want {
		t.Errorf("ImageMarker = %q", got)
	}
	if strings.Contains(InlineImageMarker("QUJD"), "\n") {
		t.Error("inline marker contains a newline")
	}
}
