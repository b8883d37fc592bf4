// Package domain defines the locally persisted domain records and their sync states.
package domain

import (
	"github.com/allisson/healthsync/internal/errors"
)

// Record-specific error definitions.
var (
	// ErrRecordNotFound indicates the record does not exist.
	ErrRecordNotFound = errors.Wrap(errors.ErrNotFound, "record not found")

	// ErrRecordForbidden indicates the record belongs to another user.
	ErrRecordForbidden = errors.Wrap(errors.ErrForbidden, "record belongs to another user")

	// ErrInvalidRecordType indicates an unknown record type.
	ErrInvalidRecordType = errors.Wrap(errors.ErrInvalidInput, "invalid record type")

	// ErrInvalidSyncStatus indicates an unknown sync status.
	ErrInvalidSyncStatus = errors.Wrap(errors.ErrInvalidInput, "invalid sync status")

	// ErrInvalidRemoteStatus indicates an unknown remote status.
	ErrInvalidRemoteStatus = errors.Wrap(errors.ErrInvalidInput, "invalid remote status")
)
