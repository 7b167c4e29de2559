package api

import (
	"context"
	"errors"
	"net"
	"os"
)

// Error codes recorded in client state and returned in service error envelopes.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeInvalidInput    = "invalid_input"
	CodeTransient       = "transient"
	CodeCancelled       = "cancelled"
	CodePermission      = "permission"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal"
)

// Sentinel errors for the interaction API.
var (
	ErrUnauthenticated = errors.New("viewer is not authenticated")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTransient       = errors.New("transient failure")
	ErrCancelled       = errors.New("request cancelled")
	ErrPermission      = errors.New("permission denied")
	ErrNotFound        = errors.New("not found")
)

// Code classifies an error into one of the taxonomy codes.
// Unknown errors classify as internal.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, ErrPermission):
		return CodePermission
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTransient):
		return CodeTransient
	case isNetworkError(err):
		return CodeTransient
	default:
		return CodeInternal
	}
}

// Retryable reports whether an error is in the transient class.
// Only transient errors may be retried; auth and validation failures are final.
func Retryable(err error) bool {
	return Code(err) == CodeTransient
}

// isNetworkError catches transport-level failures that were not already
// wrapped as ErrTransient: timeouts, refused connections, DNS failures.
func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
