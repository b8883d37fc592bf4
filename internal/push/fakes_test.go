package push

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

// memoryStore is an in-memory record store for reconciler, poller and watcher tests.
type memoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*recordDomain.Record
}

func newMemoryStore(records ...*recordDomain.Record) *memoryStore {
	s := &memoryStore{records: make(map[uuid.UUID]*recordDomain.Record)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *memoryStore) FindByBackendID(_ context.Context, backendID string) (*recordDomain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.BackendID != nil && *r.BackendID == backendID {
			copied := *r
			return &copied, nil
		}
	}
	return nil, recordDomain.ErrRecordNotFound
}

func (s *memoryStore) UpdateStatus(
	_ context.Context,
	id uuid.UUID,
	status recordDomain.RemoteStatus,
	result json.RawMessage,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return false, nil
	}
	terminal := r.RemoteStatus == recordDomain.RemoteStatusCompleted || r.RemoteStatus == recordDomain.RemoteStatusFailed
	if status == recordDomain.RemoteStatusProcessing && terminal {
		return false, nil
	}
	r.RemoteStatus = status
	if len(result) > 0 {
		r.Result = result
	}
	return true, nil
}

func (s *memoryStore) ListInFlight(_ context.Context, userID uuid.UUID, limit int) ([]*recordDomain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*recordDomain.Record
	for _, r := range s.records {
		if r.UserID != userID || !r.InFlight() {
			continue
		}
		copied := *r
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) add(record *recordDomain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
}

func (s *memoryStore) status(id uuid.UUID) recordDomain.RemoteStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].RemoteStatus
}

// inFlightRecord returns a synced record waiting for remote processing.
func inFlightRecord(userID uuid.UUID, backendID string) *recordDomain.Record {
	return &recordDomain.Record{
		ID:           uuid.Must(uuid.NewV7()),
		UserID:       userID,
		Type:         recordDomain.RecordTypeMealLog,
		BackendID:    &backendID,
		SyncStatus:   recordDomain.SyncStatusSynced,
		RemoteStatus: recordDomain.RemoteStatusProcessing,
	}
}

// statusSource answers FetchStatus from a fixed status per backend id.
type statusSource struct {
	mu       sync.Mutex
	statuses map[string]string
	calls    int
}

func (s *statusSource) FetchStatus(
	_ context.Context,
	recordType recordDomain.RecordType,
	backendID string,
) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &Message{BackendID: backendID, EntityType: string(recordType), Status: s.statuses[backendID]}, nil
}

func (s *statusSource) set(backendID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[backendID] = status
}

func (s *statusSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
