package client

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable covers network failures, timeouts and 5xx responses.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthorized means the credentials were refused and could not be
	// refreshed.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected means the server refused the payload (validation, 4xx).
	ErrRejected = errors.New("rejected by server")
	// ErrNotFound means the target record does not exist on the server.
	ErrNotFound = errors.New("not found on server")
)

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is worth retrying. Unclassified errors
// are treated as transient so that nothing is dropped on an unexpected
// failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return !IsPermanent(err)
}
