package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/cms-edge/internal/content"
	"github.com/Sternrassler/cms-edge/pkg/quota"
)

// ErrorClass represents a classification of API errors.
type ErrorClass string

const (
	// ErrorClassBadRequest represents malformed or incomplete input.
	ErrorClassBadRequest ErrorClass = "bad_request"

	// ErrorClassUnauthorized represents a missing or invalid session.
	ErrorClassUnauthorized ErrorClass = "unauthorized"

	// ErrorClassForbidden represents an authenticated caller without the required role.
	ErrorClassForbidden ErrorClass = "forbidden"

	// ErrorClassNotFound represents a reference to a record that does not exist.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassConflict represents a duplicate unique name or code.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassQuotaExhausted represents a spent daily quota.
	ErrorClassQuotaExhausted ErrorClass = "quota_exhausted"

	// ErrorClassUnavailable represents an unreachable durable store.
	ErrorClassUnavailable ErrorClass = "unavailable"

	// ErrorClassInternal represents any other server-side failure.
	ErrorClassInternal ErrorClass = "internal"
)

// Error is an error with the HTTP status and message returned to the client.
type Error struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d): %s: %v", e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

func badRequest(msg string, err error) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Class: ErrorClassBadRequest, Message: msg, Err: err}
}

// classify maps an error to the response sent to the client. Messages of
// unclassified errors are not exposed.
func classify(err error, fallback string) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, content.ErrInvalid):
		return &Error{StatusCode: http.StatusBadRequest, Class: ErrorClassBadRequest, Message: publicMessage(err), Err: err}
	case errors.Is(err, content.ErrNotFound):
		return &Error{StatusCode: http.StatusNotFound, Class: ErrorClassNotFound, Message: publicMessage(err), Err: err}
	case errors.Is(err, content.ErrConflict):
		return &Error{StatusCode: http.StatusConflict, Class: ErrorClassConflict, Message: publicMessage(err), Err: err}
	case errors.Is(err, quota.ErrStoreUnavailable):
		return &Error{StatusCode: http.StatusServiceUnavailable, Class: ErrorClassUnavailable,
			Message: "An error occurred while processing your request", Err: err}
	default:
		return &Error{StatusCode: http.StatusInternalServerError, Class: ErrorClassInternal, Message: fallback, Err: err}
	}
}

// publicMessage strips the sentinel prefix from content errors, which are
// built as "<sentinel>: <message>".
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{content.ErrInvalid, content.ErrNotFound, content.ErrConflict} {
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
			return rest
		}
	}
	return msg
}

// writeError classifies err, logs it and writes the JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	apiErr := classify(err, fallback)
	apiErrorsTotal.WithLabelValues(string(apiErr.Class)).Inc()

	logger := hlog.FromRequest(r)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("error_class", string(apiErr.Class)).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Str("error_class", string(apiErr.Class)).Msg("Request rejected")
	}

	writeJSON(w, apiErr.StatusCode, map[string]string{"error": apiErr.Message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
