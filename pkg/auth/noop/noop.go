// Package noop provides an authenticator that admits every request as the
// anonymous identity.
package noop

import (
	"context"
	"net/http"

	"github.com/nexmath/nexmath/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

var _ auth.Authenticator = Authenticator{}

// Authenticate returns auth.Anonymous.
func (Authenticator) Authenticate(context.Context, *http.Request) auth.Result {
	return auth.Result{Decision: auth.Yes, Identity: auth.Anonymous()}
}
