// Package auth verifies the session token carried in the auth cookie and
// exposes the resulting claims to HTTP handlers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"
)

// DefaultCookieName is the cookie holding the session token.
const DefaultCookieName = "auth-token"

// RoleAdmin is the role allowed to modify content and operate the cache.
const RoleAdmin = "admin"

var (
	// ErrNoToken indicates the request carried no session cookie.
	ErrNoToken = errors.New("no auth token")

	// ErrInvalidToken indicates a token that failed signature or time checks.
	ErrInvalidToken = errors.New("invalid auth token")
)

// Claims represents the claims of a verified session token.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the claims carry the admin role.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Verifier validates HS256 session tokens.
type Verifier struct {
	secret     []byte
	cookieName string
	logger     zerolog.Logger
}

// NewVerifier creates a verifier for tokens signed with secret and read from
// cookieName (DefaultCookieName if empty).
func NewVerifier(secret, cookieName string, logger zerolog.Logger) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Verifier{
		secret:     []byte(secret),
		cookieName: cookieName,
		logger:     logger,
	}, nil
}

// Verify parses and validates a token and extracts its claims.
// Signature and exp/nbf are checked.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{}
	if userID, ok := token.Get("userId"); ok {
		if s, ok := userID.(string); ok {
			claims.UserID = s
		}
	}
	if claims.UserID == "" {
		claims.UserID = token.Subject()
	}
	if email, ok := token.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	if role, ok := token.Get("role"); ok {
		if s, ok := role.(string); ok {
			claims.Role = s
		}
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return claims, nil
}

// FromRequest verifies the session cookie of r.
func (v *Verifier) FromRequest(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(v.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoToken
	}
	return v.Verify(cookie.Value)
}

type contextKey string

const claimsContextKey contextKey = "claims"

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// FromContext returns the claims stored by Middleware, or nil for anonymous
// requests.
func FromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}

// Middleware attaches verified claims to the request context. Requests
// without a valid token continue anonymously; a bad token is never an error
// at this stage.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := v.FromRequest(r)
		if err != nil {
			if !errors.Is(err, ErrNoToken) {
				v.logger.Debug().Err(err).Msg("Ignoring invalid auth token")
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireAuth rejects anonymous requests with 401. It relies on Middleware
// having run first.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous requests with 401 and non-admin callers
// with 403. It relies on Middleware having run first.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := FromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !claims.IsAdmin() {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}
