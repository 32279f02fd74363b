package plot

import (
	"iter"
	"regexp"
	"strings"
)

// BlockKind distinguishes how a code region was found.
type BlockKind int

const (
	// Fenced is a region delimited by triple-backtick fences.
	Fenced BlockKind = iota
	// Fallback is an unfenced line range found by the heuristic scan.
	Fallback
)

func (k BlockKind) String() string {
	if k == Fallback {
		return "fallback"
	}
	return "fenced"
}

// CodeBlock is a contiguous region of a reply identified as code.
// Source[Start:End] is the region that gets replaced when the block renders.
// For fenced blocks the span covers both fences; Code is the body between
// them. For fallback blocks the span covers whole lines and Code is the
// same text.
type CodeBlock struct {
	Code  string
	Start int
	End   int
	Kind  BlockKind
}

// signalTokens mark a piece of text as plotting code.
var signalTokens = []string{"matplotlib", "plt."}

var (
	// fencedPattern matches a fenced block with any (or no) language tag.
	// The body is non-greedy so adjacent blocks stay separate.
	fencedPattern = regexp.MustCompile("(?s)```[^\n]*\r?\n(.*?)```")

	// fallbackStartPattern marks the first line of an unfenced plotting snippet.
	// Lines containing "plt." also qualify.
	fallbackStartPattern = regexp.MustCompile(`^\s*(import matplotlib|from matplotlib|import numpy|import matplotlib\.pyplot)`)

	// fallbackCodePattern is the permissive shape of a code line used to find
	// where an unfenced snippet ends.
	fallbackCodePattern = regexp.MustCompile(`^\s*(#|import |from |plt\.|np\.|[A-Za-z_][A-Za-z0-9_]*\s*=|[A-Za-z_][A-Za-z0-9_]*\s*\()`)
)

// HasSignal reports whether s looks like matplotlib code.
func HasSignal(s string) bool {
	for _, tok := range signalTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// FencedBlocks returns every fenced code region in text, in textual order,
// whether or not it carries a plotting signal.
func FencedBlocks(text string) []CodeBlock {
	matches := fencedPattern.FindAllStringSubmatchIndex(text, -1)
	blocks := make([]CodeBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, CodeBlock{
			Code:  text[m[2]:m[3]],
			Start: m[0],
			End:   m[1],
			Kind:  Fenced,
		})
	}
	return blocks
}

// FallbackBlock scans unfenced text for a plotting snippet.
//
// The snippet starts at the first line that imports matplotlib or numpy,
// or mentions "plt.". Each following line that is blank or shaped like code
// extends the snippet. A line that is neither is tolerated when it directly
// follows the current end; the scan stops at the second such line. The
// boolean is false when no snippet could be isolated.
func FallbackBlock(text string) (CodeBlock, bool) {
	if !HasSignal(text) {
		return CodeBlock{}, false
	}
	lines := splitLines(text)

	start := -1
	for i, l := range lines {
		if fallbackStartPattern.MatchString(l.text) || strings.Contains(l.text, "plt.") {
			start = i
			break
		}
	}
	if start < 0 {
		return CodeBlock{}, false
	}

	end := -1
	for i := start; i < len(lines); i++ {
		l := lines[i].text
		if fallbackCodePattern.MatchString(l) || strings.TrimSpace(l) == "" {
			end = i
			continue
		}
		if end >= 0 && i > end+1 {
			break
		}
	}
	if end < 0 {
		return CodeBlock{}, false
	}

	first, last := lines[start], lines[end]
	return CodeBlock{
		Code:  text[first.start:last.end],
		Start: first.start,
		End:   last.end,
		Kind:  Fallback,
	}, true
}

// Extract yields the plotting code regions of text in textual order.
//
// Fenced blocks that carry a signal are yielded first-to-last. Only when no
// fenced block carries a signal, but the text as a whole does, the
// heuristic fallback scan runs and yields at most one block.
func Extract(text string) iter.Seq[CodeBlock] {
	return func(yield func(CodeBlock) bool) {
		found := false
		for _, b := range FencedBlocks(text) {
			if !HasSignal(b.Code) {
				continue
			}
			found = true
			if !yield(b) {
				return
			}
		}
		if found {
			return
		}
		if b, ok := FallbackBlock(text); ok {
			yield(b)
		}
	}
}

// line is one line of a text with its byte offsets. end excludes the line
// terminator and a trailing carriage return.
type line struct {
	text       string
	start, end int
}

func splitLines(text string) []line {
	var lines []line
	pos := 0
	for pos <= len(text) {
		nl := strings.IndexByte(text[pos:], '\n')
		end := len(text)
		if nl >= 0 {
			end = pos + nl
		}
		contentEnd := end
		if contentEnd > pos && text[contentEnd-1] == '\r' {
			contentEnd--
		}
		lines = append(lines, line{text: text[pos:contentEnd], start: pos, end: contentEnd})
		if nl < 0 {
			break
		}
		pos = end + 1
	}
	// A trailing newline does not start another line.
	if n := len(lines); n > 1 && lines[n-1].start == len(text) {
		lines = lines[:n-1]
	}
	return lines
}
