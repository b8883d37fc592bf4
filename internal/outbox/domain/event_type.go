package domain

import (
	"fmt"
	"strings"

	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

// Operation is the kind of change an event carries.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	return o == OperationCreate || o == OperationUpdate
}

// EventType identifies the remote operation to invoke, formatted "<record_type>.<operation>".
type EventType string

// NewEventType composes the event type for a record type and operation.
func NewEventType(recordType recordDomain.RecordType, op Operation) EventType {
	return EventType(string(recordType) + "." + string(op))
}

// Parse splits the event type into its record type and operation.
func (t EventType) Parse() (recordDomain.RecordType, Operation, error) {
	rawType, rawOp, ok := strings.Cut(string(t), ".")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidEventType, string(t))
	}

	recordType, err := recordDomain.ParseRecordType(rawType)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidEventType, string(t))
	}

	op := Operation(rawOp)
	if !op.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidEventType, string(t))
	}

	return recordType, op, nil
}

func (t EventType) String() string {
	return string(t)
}
