// Package push applies remote processing updates to the local record store. Updates arrive on a
// realtime transport (WebSocket or MQTT) and, until that transport is verified, from a poller.
package push

import (
	"encoding/json"

	"github.com/google/uuid"

	apperrors "github.com/allisson/healthsync/internal/errors"
	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

// ErrInvalidMessage indicates a pushed payload that is not a usable status update.
var ErrInvalidMessage = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid push message")

// Message is a remote status update for a delivered record.
type Message struct {
	BackendID  string          `json:"backend_id"`
	EntityType string          `json:"entity_type"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// ParseMessage decodes and checks a raw transport payload.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, apperrors.Wrap(ErrInvalidMessage, err.Error())
	}
	if msg.BackendID == "" {
		return nil, apperrors.Wrap(ErrInvalidMessage, "missing backend_id")
	}
	if _, err := msg.RemoteStatus(); err != nil {
		return nil, apperrors.Wrap(ErrInvalidMessage, err.Error())
	}
	return &msg, nil
}

// RemoteStatus parses the message status. An empty status is rejected.
func (m *Message) RemoteStatus() (recordDomain.RemoteStatus, error) {
	status, err := recordDomain.ParseRemoteStatus(m.Status)
	if err != nil {
		return "", err
	}
	if status == recordDomain.RemoteStatusNone {
		return "", recordDomain.ErrInvalidRemoteStatus
	}
	return status, nil
}

// RefreshSignal tells subscribers that stored records changed and should be re-read.
// RecordID is uuid.Nil when a whole poll pass changed the store.
type RefreshSignal struct {
	UserID   uuid.UUID               `json:"user_id"`
	RecordID uuid.UUID               `json:"record_id"`
	Type     recordDomain.RecordType `json:"type,omitempty"`
}
