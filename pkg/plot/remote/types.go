// Package remote runs plot scripts on a sandbox server instead of a local
// interpreter.
//
// Executor implements plot.Executor by posting the sanitized script to the
// sandbox server's POST /execute endpoint (see cmd/sandbox-server). Where
// the server lives is decided by an Acquirer: a fixed URL, or a per-request
// sandbox pod (package kubernetes). As with local execution, every failure
// becomes a result without an image.
package remote

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Execution statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// ExecuteResponse is the reply of POST /execute. Image is the base64 PNG
// and is empty when nothing was rendered.
type ExecuteResponse struct {
	Status          string `json:"status"`
	Image           string `json:"image,omitempty"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// HealthResponse is the reply of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Interpreter string `json:"interpreter"`
	Verified    bool   `json:"verified"`
	Capacity    int    `json:"capacity"`
	CurrentLoad int    `json:"current_load"`
	UptimeSecs  int64  `json:"uptime_seconds"`
}
