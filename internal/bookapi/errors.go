package bookapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned when the requested book does not exist.
var ErrNotFound = errors.New("book not found")

// APIError is a non-2xx response from the Book API.
type APIError struct {
	StatusCode int
	Message    string // from the {message} error envelope, may be empty
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("book api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("book api: status %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsValidationConflict reports whether err is a server-side validation (400) or
// conflict (409) rejection, returning the server-provided message.
func IsValidationConflict(err error) (string, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	if apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusConflict {
		return apiErr.Message, true
	}
	return "", false
}

// StatusCode extracts the upstream HTTP status from err, or 0 for transport errors.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
