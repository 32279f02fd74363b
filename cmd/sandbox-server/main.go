// Command sandbox-server runs inside a sandbox pod and renders plot
// scripts for the remote plot executor of the NexMath server.
//
// Configuration:
//
//	SANDBOX_PORT           - Listen port (default: 8080)
//	SANDBOX_MAX_CONCURRENT - Max concurrent executions (default: 3)
//	SANDBOX_PYTHON         - Interpreter tried before python3 and python
//	SANDBOX_MAX_TIMEOUT    - Upper bound for timeout_seconds (default: 60)
//	NEXMATH_LOG_LEVEL, NEXMATH_DEBUG - logging, as for the server
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/plot"
)

func main() {
	debug.Init("", "")

	port := envOr("SANDBOX_PORT", "8080")
	maxConcurrent := envOrInt("SANDBOX_MAX_CONCURRENT", 3)
	maxTimeout := time.Duration(envOrInt("SANDBOX_MAX_TIMEOUT", 60)) * time.Second

	locator := plot.NewLocator(plot.DefaultCandidates(os.Getenv("SANDBOX_PYTHON")))
	interp := locator.Locate(context.Background())
	if !interp.Verified {
		slog.Warn("no interpreter with matplotlib and numpy found", "fallback", interp.Path)
	}

	srv := newSandboxServer(
		plot.NewLocalExecutor(locator, plot.WithTimeout(maxTimeout), plot.WithMaxConcurrent(maxConcurrent)),
		locator, maxConcurrent, maxTimeout,
	)

	httpSrv := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: maxTimeout + 30*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("sandbox server starting",
			"port", port,
			"interpreter", interp.Path,
			"verified", interp.Verified,
			"max_concurrent", maxConcurrent,
		)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
