package plot

import (
	"regexp"
	"strings"
)

// Script is sanitized plotting code, ready to be wrapped in the harness.
type Script string

// Sanitizer prepares extracted code for execution.
//
// Sanitize always blanks lines that only call plt.show(), since the harness
// renders off-screen and a show call would block. When Strict is set,
// it also blanks fence delimiter lines and comments out every line that
// does not look like Python code. Line numbers are preserved in both modes,
// and sanitizing a Script again leaves it unchanged.
type Sanitizer struct {
	Strict bool
}

// NewSanitizer returns a Sanitizer with strict line filtering enabled.
func NewSanitizer() Sanitizer {
	return Sanitizer{Strict: true}
}

// Sanitize returns the sanitized form of raw.
func (s Sanitizer) Sanitize(raw string) Script {
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		lines[i] = s.sanitizeLine(l)
	}
	return Script(strings.Join(lines, "\n"))
}

func (s Sanitizer) sanitizeLine(l string) string {
	trimmed := strings.TrimSpace(l)
	if trimmed == "plt.show()" {
		return ""
	}
	if !s.Strict || trimmed == "" {
		return l
	}
	if strings.Contains(l, "```") {
		return ""
	}
	if IsCodeLine(l) {
		return l
	}
	return "# " + l
}

// codeLineRules is the allow-list of line shapes that are kept as code.
// A line is code when any rule matches at its start, after indentation.
var codeLineRules = []*regexp.Regexp{
	// comments
	regexp.MustCompile(`^\s*#`),
	// imports
	regexp.MustCompile(`^\s*(import |from )`),
	// calls on the usual plotting handles
	regexp.MustCompile(`^\s*(plt\.|np\.|matplotlib|sns\.|ax\.|fig\.)`),
	// control flow and definitions
	regexp.MustCompile(`^\s*(for |if |elif |else:|while |def |class |with |try:|except |return|pass|break|continue)`),
	// assignment, including tuple unpacking
	regexp.MustCompile(`^\s*[A-Za-z_][A-Za-z0-9_]*(\s*,\s*[A-Za-z_][A-Za-z0-9_]*)*\s*=`),
	// bare call
	regexp.MustCompile(`^\s*[A-Za-z_][A-Za-z0-9_]*\s*\(`),
	// continuation of a multi-line expression
	regexp.MustCompile(`^\s*[\]\)\}]`),
}

// IsCodeLine reports whether l has the shape of a Python statement the
// sanitizer keeps.
func IsCodeLine(l string) bool {
	for _, rule := range codeLineRules {
		if rule.MatchString(l) {
			return true
		}
	}
	return false
}
