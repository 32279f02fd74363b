package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nexmath/nexmath/pkg/storage"
)

type denyAll struct{}

func (denyAll) Allow(_ context.Context, _ *Identity) error { return ErrTooManyRequests }

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	if body.Error == "" {
		t.Error("error message missing")
	}
	return body.Type
}

func TestMiddleware(t *testing.T) {
	var (
		gotID     *Identity
		gotTenant string
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = IdentityFromContext(r.Context())
		gotTenant = storage.GetTenant(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("accepted", func(t *testing.T) {
		chain := NewChain(No, AuthenticatorFunc(func(context.Context, *http.Request) Result {
			return Result{Decision: Yes, Identity: &Identity{Subject: "alice", Tenant: "school-a"}}
		}))
		rec := serve(t, Middleware(chain, nil, nil)(next), http.MethodPost, "/api/chat")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if gotID == nil || gotID.Subject != "alice" {
			t.Errorf("identity = %+v", gotID)
		}
		if gotTenant != "school-a" {
			t.Errorf("tenant = %q", gotTenant)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		rec := serve(t, Middleware(NewChain(No), nil, nil)(next), http.MethodPost, "/api/chat")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if got := errorType(t, rec); got != "unauthorized" {
			t.Errorf("type = %q", got)
		}
	})

	t.Run("empty subject", func(t *testing.T) {
		rec := serve(t, Middleware(NewChain(No, vote(Yes, "")), nil, nil)(next), http.MethodPost, "/api/chat")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		rec := serve(t, Middleware(NewChain(Yes), denyAll{}, nil)(next), http.MethodPost, "/api/chat")
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want 429", rec.Code)
		}
		if got := errorType(t, rec); got != "too_many_requests" {
			t.Errorf("type = %q", got)
		}
	})

	t.Run("bypass", func(t *testing.T) {
		h := Middleware(NewChain(No), nil, DefaultBypassEndpoints)(next)
		for _, path := range DefaultBypassEndpoints {
			if rec := serve(t, h, http.MethodGet, path); rec.Code != http.StatusOK {
				t.Errorf("%s: status = %d", path, rec.Code)
			}
		}
		if rec := serve(t, h, http.MethodGet, "/api/sessions/x"); rec.Code != http.StatusUnauthorized {
			t.Errorf("non-bypass path: status = %d", rec.Code)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		rec := serve(t, Middleware(NewChain(No), nil, nil)(next), http.MethodOptions, "/api/chat")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})
}
