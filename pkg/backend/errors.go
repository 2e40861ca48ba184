package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the backend client.
var (
	// ErrNetworkError indicates the backend could not be reached.
	ErrNetworkError = errors.New("network error communicating with backend")

	// ErrInvalidResponse indicates a response body that is not what the endpoint promises.
	ErrInvalidResponse = errors.New("invalid response from backend")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string // the body's "error" field, when present
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error (status %d)", e.StatusCode)
}

// IsNotFound returns true if the backend answered 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsNetworkError returns true if the request never got an answer.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetworkError)
}
