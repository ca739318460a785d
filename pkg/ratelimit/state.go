// Package ratelimit implements the per-client sliding-window request limiter
// that gates every inbound API request.
package ratelimit

import (
	"time"
)

// Defaults for the edge limiter.
const (
	// DefaultMaxRequests is the number of requests admitted per window.
	DefaultMaxRequests = 100

	// DefaultWindow is the window length, measured from the first request.
	DefaultWindow = 60 * time.Second
)

// State is the position of a client in the limiter's state machine.
type State string

const (
	// StateUnthrottled means no live window exists for the client.
	StateUnthrottled State = "unthrottled"

	// StateCounting means a window is open and has capacity left.
	StateCounting State = "counting"

	// StateExhausted means the window is full; requests are rejected until ResetAt.
	StateExhausted State = "exhausted"
)

// Counter tracks the requests one client made in its current window.
type Counter struct {
	// Identity is the client key (usually the client IP).
	Identity string `json:"identity"`

	// Count is the number of admitted requests in this window.
	// It never exceeds the configured maximum.
	Count int `json:"count"`

	// ResetAt is when the window closes. Rejected requests never move it.
	ResetAt time.Time `json:"reset_at"`
}

// IsElapsed returns true if the window has closed at the given instant.
func (c *Counter) IsElapsed(now time.Time) bool {
	return now.After(c.ResetAt)
}

// StateAt returns the state of the counter at the given instant.
func (c *Counter) StateAt(now time.Time, max int) State {
	switch {
	case c == nil || c.IsElapsed(now):
		return StateUnthrottled
	case c.Count >= max:
		return StateExhausted
	default:
		return StateCounting
	}
}

// TimeUntilReset returns the duration until the window closes.
// Returns 0 if the window has already closed.
func (c *Counter) TimeUntilReset(now time.Time) time.Duration {
	d := c.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Decision is the outcome of a limiter check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`

	// Limit is the configured maximum per window.
	Limit int `json:"limit"`

	// Remaining is how many more requests the window admits (0 when rejected).
	Remaining int `json:"remaining"`

	// ResetAt is when the current window closes.
	ResetAt time.Time `json:"reset_at"`
}
