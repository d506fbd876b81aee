package assistant

import (
	"fmt"

	"github.com/ternarybob/assay/internal/apperr"
)

// maxBodyInError caps how much of a failed response body ends up in Error().
const maxBodyInError = 512

// RequestFailedError is returned for any non-2xx HTTP response.
type RequestFailedError struct {
	StatusCode int
	Body       string
}

func (e *RequestFailedError) Error() string {
	body := e.Body
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	return fmt.Sprintf("%s: HTTP %d: %s", apperr.KindAPIRequestFailed, e.StatusCode, body)
}

// Kind implements the apperr kind contract.
func (e *RequestFailedError) Kind() apperr.Kind { return apperr.KindAPIRequestFailed }

// Is matches apperr.ErrAPIRequestFailed.
func (e *RequestFailedError) Is(target error) bool { return target == apperr.ErrAPIRequestFailed }

// Retryable reports whether a caller-side retry could succeed (429 or 5xx).
// The client itself never retries.
func (e *RequestFailedError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// APIError is returned when a 2xx response carries a top-level "error" field.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", apperr.KindAPIError, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", apperr.KindAPIError, e.Message)
}

// Kind implements the apperr kind contract.
func (e *APIError) Kind() apperr.Kind { return apperr.KindAPIError }

// Is matches apperr.ErrAPIError.
func (e *APIError) Is(target error) bool { return target == apperr.ErrAPIError }

// UnreachableError is returned when no HTTP response was received.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", apperr.KindAPIUnreachable, e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Kind implements the apperr kind contract.
func (e *UnreachableError) Kind() apperr.Kind { return apperr.KindAPIUnreachable }

// Is matches apperr.ErrAPIUnreachable.
func (e *UnreachableError) Is(target error) bool { return target == apperr.ErrAPIUnreachable }
