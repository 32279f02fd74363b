// Package debug provides category-gated debug logging for nexmath.
//
// Categories select which subsystems log (NEXMATH_DEBUG or logging.debug),
// and the level selects how much detail is kept (NEXMATH_LOG_LEVEL or
// logging.level):
//
//	debug.Log("plot", "plot rendered", "bytes", n)
//	if debug.Enabled("provider") { /* expensive formatting */ }
//
// Categories: provider, plot (implies sandbox), sandbox, storage, engine, auth, transport, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// LevelTrace is below slog.LevelDebug. At TRACE, full provider payloads
// are logged.
const LevelTrace = slog.LevelDebug - 4

// categories is only written by init and Init, before serving starts.
var categories map[string]bool

func init() {
	env := os.Getenv("NEXMATH_DEBUG")
	categories = parseCategories(env)
}

// Init sets the enabled categories and installs the default slog text
// handler at the resolved level. Environment values win over the
// configured ones.
func Init(configCategories string, configLevel string) {
	cats := os.Getenv("NEXMATH_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)

	level := os.Getenv("NEXMATH_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}
	if level == "" {
		level = "INFO"
	}

	slogLevel := ParseLevel(level)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel,
	})))
}

// implied lists categories switched on together with another one. The
// sandbox runs the plot pipeline's scripts, so debugging plots includes it.
var implied = map[string][]string{
	"plot": {"sandbox"},
}

// Enabled reports whether debug output is active for category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message tagged with category, if it is enabled.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible at TRACE level.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// Script logs a plotting script with numbered lines at TRACE level.
func Script(category, msg, code string) {
	if !TraceIsEnabled(category) {
		return
	}
	var b strings.Builder
	for i, l := range strings.Split(code, "\n") {
		fmt.Fprintf(&b, "%4d | %s\n", i+1, l)
	}
	slog.Log(context.Background(), LevelTrace, msg, "debug", category, "script", b.String())
}

// RedactImages replaces the payload of every inline base64 image in s with
// its size, so rendered replies can be logged.
func RedactImages(s string) string {
	return imagePayload.ReplaceAllStringFunc(s, func(m string) string {
		prefix, data, _ := strings.Cut(m, ",")
		return fmt.Sprintf("%s,<%d bytes>", prefix, len(data))
	})
}

var imagePayload = regexp.MustCompile(`data:image/[a-z+]+;base64,[A-Za-z0-9+/=]+`)

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories in sorted order.
func Categories() []string {
	result := make([]string, 0, len(categories))
	for k := range categories {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// Truncate shortens s to at most maxLen bytes plus "...", without splitting
// a UTF-8 sequence. Base64 image payloads make log lines huge otherwise.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat == "" {
			continue
		}
		m[cat] = true
		for _, extra := range implied[cat] {
			m[extra] = true
		}
	}
	return m
}
