package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/makepost/corenote/internal/apperr"
)

// ErrTimeout reports an attempt that exceeded its per-attempt timeout.
// It is always wrapped in a TransientError.
var ErrTimeout = errors.New("timed out")

// TransientError is a failure worth retrying: a network error, a timeout,
// a 5xx or a 429.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response. Body holds the server's error message
// when the response had the JSON error shape, the raw body otherwise.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Is lets a 400 match apperr.ErrInvalidNote.
func (e *StatusError) Is(target error) bool {
	return target == apperr.ErrInvalidNote && e.Code == http.StatusBadRequest
}

// ExhaustedError is returned once every retry failed. It unwraps to the
// last failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}
