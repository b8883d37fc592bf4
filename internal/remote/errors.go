package remote

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/allisson/healthsync/internal/errors"
	outboxDomain "github.com/allisson/healthsync/internal/outbox/domain"
)

var (
	// ErrUnknownEventType indicates no handler is registered for an outbox event type.
	ErrUnknownEventType = apperrors.Wrap(apperrors.ErrInvalidInput, "unknown event type")

	// ErrUnsupportedRecordType indicates the backend has no endpoint for a record type.
	ErrUnsupportedRecordType = apperrors.Wrap(apperrors.ErrInvalidInput, "unsupported record type")

	// ErrInvalidResponse indicates the backend answered with a body that could not be decoded.
	ErrInvalidResponse = apperrors.New("invalid backend response")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// IsPermanent reports whether retrying the call that produced err cannot succeed.
// Client errors are permanent except 408 and 429; network faults, timeouts and 5xx are not.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if outboxDomain.IsPermanent(err) {
		return true
	}
	if errors.Is(err, ErrUnknownEventType) || errors.Is(err, ErrUnsupportedRecordType) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return false
		}
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
	}
	return false
}
