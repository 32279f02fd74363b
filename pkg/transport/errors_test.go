package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nexmath/nexmath/pkg/api"
	"github.com/nexmath/nexmath/pkg/storage"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		err  *api.APIError
		want int
	}{
		{api.NewInvalidRequestError("message", "bad"), http.StatusBadRequest},
		{api.NewNotFoundError("missing"), http.StatusNotFound},
		{api.NewTooManyRequestsError("slow down"), http.StatusTooManyRequests},
		{api.NewUnauthorizedError("no key"), http.StatusUnauthorized},
		{api.NewModelError("upstream"), http.StatusBadGateway},
		{api.NewServerError("oops"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			if got := HTTPStatusFromError(tt.err); got != tt.want {
				t.Errorf("HTTPStatusFromError(%s) = %d, want %d", tt.err.Type, got, tt.want)
			}
		})
	}
}

func TestAsAPIError(t *testing.T) {
	orig := api.NewInvalidRequestError("mode", "bad mode")
	if got := AsAPIError(fmt.Errorf("wrapped: %w", orig)); got != orig {
		t.Errorf("wrapped APIError not unwrapped: %+v", got)
	}
	if got := AsAPIError(fmt.Errorf("load: %w", storage.ErrNotFound)); got.Type != api.ErrorTypeNotFound {
		t.Errorf("ErrNotFound mapped to %q, want not_found", got.Type)
	}
	if got := AsAPIError(fmt.Errorf("disk on fire")); got.Type != api.ErrorTypeServerError {
		t.Errorf("plain error mapped to %q, want server_error", got.Type)
	}
}

func TestWriteAPIError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAPIError(rec, api.NewInvalidRequestError("message", "No message or image provided"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "No message or image provided" {
		t.Errorf("error = %v, want the plain message", body["error"])
	}
	if body["type"] != string(api.ErrorTypeInvalidRequest) {
		t.Errorf("type = %v", body["type"])
	}
}
