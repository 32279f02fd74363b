package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/nexmath/nexmath/pkg/auth"
)

const (
	testKID      = "nexmath-test-1"
	testIssuer   = "https://auth.nexmath.test"
	testAudience = "nexmath"
)

var testKey = func() *rsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return k
}()

func jwksServer(t *testing.T, fetches *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		pub := testKey.PublicKey
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{
				{
					"kty": "RSA",
					"kid": testKID,
					"use": "sig",
					"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
				},
				{"kty": "EC", "kid": "ignored"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sign(t *testing.T, claims jwtlib.MapClaims, kid string) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(testKey)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return s
}

func validClaims() jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub": "student-42",
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *atomic.Int32) {
	t.Helper()
	fetches := &atomic.Int32{}
	srv := jwksServer(t, fetches)
	return New(Config{Issuer: testIssuer, Audience: testAudience, JWKSURL: srv.URL}), fetches
}

func authenticate(a *Authenticator, token string) auth.Result {
	r := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return a.Authenticate(context.Background(), r)
}

func TestAuthenticate_Valid(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	claims := validClaims()
	claims["tenant_id"] = "school-a"
	claims["tier"] = "premium"
	claims["scope"] = "chat sessions"

	res := authenticate(a, sign(t, claims, testKID))
	if res.Decision != auth.Yes {
		t.Fatalf("decision = %v, err = %v", res.Decision, res.Err)
	}
	id := res.Identity
	if id.Subject != "student-42" || id.Tenant != "school-a" || id.Tier != "premium" {
		t.Errorf("identity = %+v", id)
	}
	if len(id.Scopes) != 2 || id.Scopes[0] != "chat" {
		t.Errorf("scopes = %v", id.Scopes)
	}
}

func TestAuthenticate_Rejected(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongIss := validClaims()
	wrongIss["iss"] = "https://evil.test"
	wrongAud := validClaims()
	wrongAud["aud"] = "other"
	noSub := validClaims()
	delete(noSub, "sub")

	hs := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, validClaims())
	hs.Header["kid"] = testKID
	hmacToken, _ := hs.SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"expired", sign(t, expired, testKID)},
		{"wrong issuer", sign(t, wrongIss, testKID)},
		{"wrong audience", sign(t, wrongAud, testKID)},
		{"missing subject", sign(t, noSub, testKID)},
		{"missing kid", sign(t, validClaims(), "")},
		{"unknown kid", sign(t, validClaims(), "rotated-away")},
		{"hmac", hmacToken},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := authenticate(a, tt.token)
			if res.Decision != auth.No {
				t.Errorf("decision = %v, want No", res.Decision)
			}
			if res.Err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAuthenticate_Abstain(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	if res := authenticate(a, ""); res.Decision != auth.Abstain {
		t.Errorf("decision = %v, want Abstain", res.Decision)
	}
}

func TestKeyCache(t *testing.T) {
	a, fetches := newTestAuthenticator(t)
	token := sign(t, validClaims(), testKID)

	for range 3 {
		if res := authenticate(a, token); res.Decision != auth.Yes {
			t.Fatalf("decision = %v, err = %v", res.Decision, res.Err)
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("JWKS fetched %d times, want 1", got)
	}

	a.keys.mu.Lock()
	a.keys.fetchedAt = time.Now().Add(-2 * time.Hour)
	a.keys.mu.Unlock()

	authenticate(a, token)
	if got := fetches.Load(); got != 2 {
		t.Errorf("JWKS fetched %d times after expiry, want 2", got)
	}
}

func TestKeyCache_Concurrent(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	token := sign(t, validClaims(), testKID)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := authenticate(a, token); res.Decision != auth.Yes {
				t.Errorf("decision = %v, err = %v", res.Decision, res.Err)
			}
		}()
	}
	wg.Wait()
}

func TestClaimScopes(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"string", "a b c", 3},
		{"array", []any{"a", "b", 1}, 2},
		{"empty string", "", 0},
		{"missing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := jwtlib.MapClaims{}
			if tt.value != nil {
				claims["scope"] = tt.value
			}
			if got := claimScopes(claims, "scope"); len(got) != tt.want {
				t.Errorf("got %v, want %d scopes", got, tt.want)
			}
		})
	}
}
