// Package workerauth authenticates callbacks from background media workers
// using a pre-shared secret. Worker requests never carry a user session.
package workerauth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Header carries the shared secret on worker callbacks.
const Header = "X-Worker-Secret"

// Config holds worker authentication configuration.
type Config struct {
	SharedSecret string `env:"WORKER_SHARED_SECRET,required"`
}

// Verifier checks the shared secret on incoming worker requests.
type Verifier struct {
	secret string
}

// NewVerifier creates a verifier for the configured shared secret.
func NewVerifier(cfg Config) *Verifier {
	return &Verifier{secret: cfg.SharedSecret}
}

// Verify reports whether the request carries the correct shared secret,
// either in the X-Worker-Secret header or as a bearer token. Comparison is
// constant time.
func (v *Verifier) Verify(r *http.Request) bool {
	if v.secret == "" {
		return false
	}

	candidate := r.Header.Get(Header)
	if candidate == "" {
		if auth := r.Header.Get("Authorization"); auth != "" {
			if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
				candidate = strings.TrimSpace(token)
			}
		}
	}
	if candidate == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(candidate), []byte(v.secret)) == 1
}
