package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownIdentity is used when a request carries no client address headers.
// All such clients share one bucket.
const UnknownIdentity = "unknown"

// ClientIP derives the client identity from proxy headers: the first
// X-Forwarded-For entry, else X-Real-IP, else UnknownIdentity.
func ClientIP(r *http.Request) string {
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return UnknownIdentity
}
