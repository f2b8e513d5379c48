// Package collab implements the external collaborator boundaries:
// summarization, bookmarking, and cookie-aware content extraction.
// Core packages depend only on the small interfaces in internal/jobs;
// the concrete clients here are wired up in main.
package collab

import (
	"fmt"
	"net/http"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrorKind classifies a collaborator failure. All kinds are retryable
// by an explicit user action; none are retried automatically.
type ErrorKind string

// Collaborator failure kinds.
const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate-limit"
	KindNetwork   ErrorKind = "network"
	KindStatus    ErrorKind = "status"
	KindExtract   ErrorKind = "extract"
)

// Error is a typed collaborator failure.
type Error struct {
	Op     string
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// statusKind maps an HTTP status to an error kind.
func statusKind(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimit
	default:
		return KindStatus
	}
}
