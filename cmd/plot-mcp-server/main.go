// Command plot-mcp-server exposes the NexMath plot pipeline as MCP tools
// over streamable HTTP on /mcp.
//
// Tools:
//
//	render_plot   - sanitize and run matplotlib code, returning the PNG
//	extract_plots - list the plotting code blocks found in a text
//
// Configuration:
//
//	PORT           - Listen port (default: 8080)
//	NEXMATH_PYTHON - Interpreter tried before python3 and python
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nexmath/nexmath/pkg/debug"
	"github.com/nexmath/nexmath/pkg/plot"
)

func main() {
	debug.Init("", "")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	executor := plot.NewLocalExecutor(plot.DefaultLocator())
	server := newServer(executor)

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})

	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("plot MCP server starting", "port", port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
}
