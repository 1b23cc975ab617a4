package workerauth_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mixforge/platform/pkg/workerauth"
)

func TestVerify(t *testing.T) {
	t.Parallel()

	verifier := workerauth.NewVerifier(workerauth.Config{SharedSecret: "s3cr3t"})

	t.Run("accepts header secret", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("POST", "/worker/callback", nil)
		req.Header.Set(workerauth.Header, "s3cr3t")
		assert.True(t, verifier.Verify(req))
	})

	t.Run("accepts bearer secret", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("POST", "/worker/callback", nil)
		req.Header.Set("Authorization", "Bearer s3cr3t")
		assert.True(t, verifier.Verify(req))
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("POST", "/worker/callback", nil)
		req.Header.Set(workerauth.Header, "wrong")
		assert.False(t, verifier.Verify(req))
	})

	t.Run("rejects missing secret", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("POST", "/worker/callback", nil)
		assert.False(t, verifier.Verify(req))
	})

	t.Run("empty configured secret rejects everything", func(t *testing.T) {
		t.Parallel()

		empty := workerauth.NewVerifier(workerauth.Config{})
		req := httptest.NewRequest("POST", "/worker/callback", nil)
		req.Header.Set(workerauth.Header, "")
		assert.False(t, empty.Verify(req))
	})
}
