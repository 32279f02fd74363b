package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/plot"
	"github.com/nexmath/nexmath/pkg/plot/remote"
)

const (
	defaultTimeout = 15 * time.Second
	maxRequestBody = 1 << 20
)

type interpreterLocator interface {
	Locate(ctx context.Context) plot.Interpreter
}

type sandboxServer struct {
	executor      plot.Executor
	locator       interpreterLocator
	sanitizer     plot.Sanitizer
	maxConcurrent int32
	maxTimeout    time.Duration
	currentLoad   atomic.Int32
	startTime     time.Time
}

func newSandboxServer(executor plot.Executor, locator interpreterLocator, maxConcurrent int, maxTimeout time.Duration) *sandboxServer {
	return &sandboxServer{
		executor:      executor,
		locator:       locator,
		sanitizer:     plot.NewSanitizer(),
		maxConcurrent: int32(maxConcurrent),
		maxTimeout:    maxTimeout,
		startTime:     time.Now(),
	}
}

func (s *sandboxServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *sandboxServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	current := s.currentLoad.Add(1)
	defer s.currentLoad.Add(-1)

	if current > s.maxConcurrent {
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d/%d concurrent executions)", current, s.maxConcurrent))
		return
	}

	var req remote.ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	timeout := defaultTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	timeout = min(timeout, s.maxTimeout)

	slog.Info("execute request",
		"code", debug.Truncate(req.Code, 120),
		"timeout", timeout,
	)

	// Sanitize is idempotent; scripts sanitized by the caller pass unchanged.
	script := s.sanitizer.Sanitize(req.Code)

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	res := s.executor.Execute(ctx, script)

	resp := remote.ExecuteResponse{
		Status:          remote.StatusError,
		Image:           res.Image,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		ExitCode:        res.ExitCode,
		ExecutionTimeMs: res.Duration.Milliseconds(),
	}
	switch {
	case res.OK():
		resp.Status = remote.StatusSuccess
	case res.TimedOut:
		resp.Status = remote.StatusTimeout
	}

	slog.Info("execute complete",
		"status", resp.Status,
		"exit_code", resp.ExitCode,
		"duration_ms", resp.ExecutionTimeMs,
		"image_bytes", len(resp.Image),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (s *sandboxServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	interp := s.locator.Locate(r.Context())
	status := "healthy"
	if !interp.Verified {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, remote.HealthResponse{
		Status:      status,
		Interpreter: interp.Path,
		Verified:    interp.Verified,
		Capacity:    int(s.maxConcurrent),
		CurrentLoad: int(s.currentLoad.Load()),
		UptimeSecs:  int64(time.Since(s.startTime).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
