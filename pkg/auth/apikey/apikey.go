// Package apikey authenticates bearer tokens against a static list of API
// keys. Only SHA-256 hashes of the keys are kept in memory, and tokens are
// compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/nexmath/nexmath/pkg/auth"
)

// Key is one configured API key and the identity it grants.
type Key struct {
	Key     string
	Subject string
	Tier    string
	Tenant  string
}

type entry struct {
	hash     [sha256.Size]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against configured keys.
type Authenticator struct {
	entries []entry
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New hashes keys and returns an Authenticator for them. Keys without a
// subject are named by their position.
func New(keys []Key) *Authenticator {
	a := &Authenticator{entries: make([]entry, 0, len(keys))}
	for i, k := range keys {
		subject := k.Subject
		if subject == "" {
			subject = "apikey-" + strconv.Itoa(i)
		}
		a.entries = append(a.entries, entry{
			hash:     sha256.Sum256([]byte(k.Key)),
			identity: auth.Identity{Subject: subject, Tier: k.Tier, Tenant: k.Tenant},
		})
	}
	return a
}

// Authenticate abstains without a bearer token, votes No for an unknown
// one, and Yes with the key's identity otherwise. Every entry is compared
// so the time taken does not depend on which key matched.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	token, ok := auth.BearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	sum := sha256.Sum256([]byte(token))
	match := -1
	for i := range a.entries {
		if subtle.ConstantTimeCompare(sum[:], a.entries[i].hash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}
	id := a.entries[match].identity
	return auth.Result{Decision: auth.Yes, Identity: &id}
}
