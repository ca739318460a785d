package testutil

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// SignToken returns an HS256 session token for the given user and role,
// valid for ttl (negative ttl yields an expired token).
func SignToken(t testing.TB, secret, userID, role string, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	token := jwt.New()
	claims := map[string]interface{}{
		"userId":          userID,
		"email":           userID + "@example.com",
		"role":            role,
		jwt.IssuedAtKey:   now.Add(-time.Minute),
		jwt.ExpirationKey: now.Add(ttl),
	}
	for key, value := range claims {
		if err := token.Set(key, value); err != nil {
			t.Fatalf("Failed to set claim %s: %v", key, err)
		}
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte(secret)))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return string(signed)
}
