package domain

import (
	"errors"
	"time"

	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

// Delivery is the backend acknowledgement of a dispatched event.
type Delivery struct {
	BackendID       string
	ServerTimestamp time.Time
	RemoteStatus    recordDomain.RemoteStatus
}

// PermanentError marks a delivery failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

// NewPermanentError wraps err as non-retryable. A nil err stays nil.
func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}
