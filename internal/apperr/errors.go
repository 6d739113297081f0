// Package apperr defines the error taxonomy shared by the gateway, the
// messaging service and the HTTP layer. Callers wrap one of the sentinels and
// classify with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthentication is returned for a missing, invalid or expired credential,
	// or an inactive account.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotFound is returned when a referenced message, user or call session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAuthorization is returned when the requester does not participate in
	// the message or call they act on.
	ErrAuthorization = errors.New("not authorized")

	// ErrValidation is returned for malformed payloads.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence wraps failures of the underlying message store.
	ErrPersistence = errors.New("persistence failure")
)

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

func Unauthorized(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrAuthorization)
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

func Unauthenticated(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrAuthentication)
}

// Persistence wraps a store error, keeping the original cause in the chain.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// HTTPStatus maps an error to the status code returned by the REST surface.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError reports whether err is caused by the request rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAuthorization) ||
		errors.Is(err, ErrAuthentication)
}
