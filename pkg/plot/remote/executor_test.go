package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexmath/nexmath/pkg/plot"
)

func sandbox(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestExecutor_Success(t *testing.T) {
	var got ExecuteRequest
	url := sandbox(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/execute" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ExecuteResponse{Status: StatusSuccess, Image: "iVBORw0KGgo=", ExecutionTimeMs: 420})
	})

	e := NewExecutor(StaticAcquirer{URL: url + "/"})
	res := e.Execute(context.Background(), plot.Script("plt.plot([1, 2])"))

	if !res.OK() || res.Image != "iVBORw0KGgo=" {
		t.Fatalf("result = %+v", res)
	}
	if res.Duration.Milliseconds() != 420 {
		t.Errorf("duration = %v", res.Duration)
	}
	if got.Code != "plt.plot([1, 2])" || got.TimeoutSeconds != 15 {
		t.Errorf("request = %+v", got)
	}
}

func TestExecutor_Failures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		timedOut bool
		stderr   string
	}{
		{
			name: "script error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(ExecuteResponse{Status: StatusError, Stderr: "NameError", ExitCode: 1})
			},
			stderr: "NameError",
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(ExecuteResponse{Status: StatusTimeout, ExitCode: -1})
			},
			timedOut: true,
		},
		{
			name: "at capacity",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			stderr: "sandbox at capacity",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("code is required"))
			},
			stderr: "HTTP 400: code is required",
		},
		{
			name: "invalid JSON",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("{nope"))
			},
			stderr: "decode response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(StaticAcquirer{URL: sandbox(t, tt.handler)}, WithRetries(0))
			res := e.Execute(context.Background(), "plt.plot([1])")
			if res.OK() {
				t.Fatal("expected no image")
			}
			if res.TimedOut != tt.timedOut {
				t.Errorf("TimedOut = %v, want %v", res.TimedOut, tt.timedOut)
			}
			if !strings.Contains(res.Stderr, tt.stderr) {
				t.Errorf("stderr = %q, want it to contain %q", res.Stderr, tt.stderr)
			}
		})
	}
}

func TestExecutor_RetriesAtCapacity(t *testing.T) {
	var calls atomic.Int32
	url := sandbox(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(ExecuteResponse{Status: StatusSuccess, Image: "aW1n"})
	})

	e := NewExecutor(StaticAcquirer{URL: url}, WithRetries(1))
	e.client.RetryWaitMin = 0
	e.client.RetryWaitMax = 0

	if res := e.Execute(context.Background(), "plt.plot([1])"); !res.OK() {
		t.Fatalf("result = %+v", res)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

type failingAcquirer struct{}

func (failingAcquirer) Acquire(context.Context) (string, func(), error) {
	return "", nil, errors.New("no capacity")
}

type countingAcquirer struct {
	url      string
	released atomic.Int32
}

func (a *countingAcquirer) Acquire(context.Context) (string, func(), error) {
	return a.url, func() { a.released.Add(1) }, nil
}

func TestExecutor_Acquirer(t *testing.T) {
	res := NewExecutor(failingAcquirer{}).Execute(context.Background(), "x = 1")
	if res.OK() || !strings.Contains(res.Stderr, "acquiring sandbox: no capacity") {
		t.Errorf("result = %+v", res)
	}

	a := &countingAcquirer{url: sandbox(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(ExecuteResponse{Status: StatusSuccess, Image: "aW1n"})
	})}
	NewExecutor(a).Execute(context.Background(), "x = 1")
	if a.released.Load() != 1 {
		t.Errorf("released %d times, want 1", a.released.Load())
	}
}

func TestExecutor_WithTimeout(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    int
	}{
		{30 * time.Second, 30},
		{300 * time.Millisecond, 1},
		{time.Nanosecond, 1},
		{1500 * time.Millisecond, 2},
		{2 * time.Second, 2},
	}
	for _, tt := range tests {
		t.Run(tt.timeout.String(), func(t *testing.T) {
			var got ExecuteRequest
			url := sandbox(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewDecoder(r.Body).Decode(&got)
				json.NewEncoder(w).Encode(ExecuteResponse{Status: StatusSuccess, Image: "aW1n"})
			})
			NewExecutor(StaticAcquirer{URL: url}, WithTimeout(tt.timeout)).Execute(context.Background(), "x = 1")
			if got.TimeoutSeconds != tt.want {
				t.Errorf("timeout_seconds = %d, want %d", got.TimeoutSeconds, tt.want)
			}
		})
	}
}

func TestStaticAcquirer_Empty(t *testing.T) {
	if _, _, err := (StaticAcquirer{}).Acquire(context.Background()); err == nil {
		t.Error("expected error for empty URL")
	}
}
