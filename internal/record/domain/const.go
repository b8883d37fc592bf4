package domain

import "fmt"

// RecordType identifies the kind of domain record.
type RecordType string

// Record types captured by the application.
const (
	RecordTypeProgressEntry     RecordType = "progress_entry"
	RecordTypeMealLog           RecordType = "meal_log"
	RecordTypePhysicalAttribute RecordType = "physical_attribute"
	RecordTypeMoodEntry         RecordType = "mood_entry"
	RecordTypeSleepSession      RecordType = "sleep_session"
)

// RecordTypes lists every known record type.
var RecordTypes = []RecordType{
	RecordTypeProgressEntry,
	RecordTypeMealLog,
	RecordTypePhysicalAttribute,
	RecordTypeMoodEntry,
	RecordTypeSleepSession,
}

// Valid reports whether t is a known record type.
func (t RecordType) Valid() bool {
	for _, known := range RecordTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseRecordType converts a persisted or user supplied value into a RecordType.
func ParseRecordType(value string) (RecordType, error) {
	t := RecordType(value)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecordType, value)
	}
	return t, nil
}

// SyncStatus tracks whether the record reached the backend.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// Valid reports whether s is a known sync status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusFailed:
		return true
	}
	return false
}

// ParseSyncStatus converts a persisted value into a SyncStatus.
func ParseSyncStatus(value string) (SyncStatus, error) {
	s := SyncStatus(value)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSyncStatus, value)
	}
	return s, nil
}

// RemoteStatus is the backend-computed processing state delivered by push or polling.
type RemoteStatus string

const (
	RemoteStatusNone       RemoteStatus = ""
	RemoteStatusProcessing RemoteStatus = "processing"
	RemoteStatusCompleted  RemoteStatus = "completed"
	RemoteStatusFailed     RemoteStatus = "failed"
)

// Valid reports whether s is a known remote status.
func (s RemoteStatus) Valid() bool {
	switch s {
	case RemoteStatusNone, RemoteStatusProcessing, RemoteStatusCompleted, RemoteStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the backend finished processing.
func (s RemoteStatus) Terminal() bool {
	return s == RemoteStatusCompleted || s == RemoteStatusFailed
}

// ParseRemoteStatus converts a persisted or pushed value into a RemoteStatus.
func ParseRemoteStatus(value string) (RemoteStatus, error) {
	s := RemoteStatus(value)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRemoteStatus, value)
	}
	return s, nil
}
