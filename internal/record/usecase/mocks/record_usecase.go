// Package mocks provides mock implementations of the record use cases for testing.
package mocks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/healthsync/internal/record/domain"
	"github.com/allisson/healthsync/internal/record/usecase"
)

// MockRecordUseCase is a mock implementation of RecordUseCase for testing.
type MockRecordUseCase struct {
	mock.Mock
}

var _ usecase.RecordUseCase = (*MockRecordUseCase)(nil)

// NewMockRecordUseCase creates a MockRecordUseCase that asserts its expectations on test cleanup.
func NewMockRecordUseCase(t *testing.T) *MockRecordUseCase {
	m := &MockRecordUseCase{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Save mocks the Save method of RecordUseCase.
func (m *MockRecordUseCase) Save(ctx context.Context, input usecase.SaveInput) (*usecase.SaveResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.SaveResult), args.Error(1)
}

// Update mocks the Update method of RecordUseCase.
func (m *MockRecordUseCase) Update(ctx context.Context, input usecase.UpdateInput) (*domain.Record, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Record), args.Error(1)
}

// Get mocks the Get method of RecordUseCase.
func (m *MockRecordUseCase) Get(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*domain.Record, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Record), args.Error(1)
}

// Fetch mocks the Fetch method of RecordUseCase.
func (m *MockRecordUseCase) Fetch(ctx context.Context, filter domain.Filter) ([]*domain.Record, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Record), args.Error(1)
}

// FetchLatest mocks the FetchLatest method of RecordUseCase.
func (m *MockRecordUseCase) FetchLatest(
	ctx context.Context,
	userID uuid.UUID,
	recordType domain.RecordType,
	metric string,
) (*domain.Record, error) {
	args := m.Called(ctx, userID, recordType, metric)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Record), args.Error(1)
}

// FindByBackendID mocks the FindByBackendID method of RecordUseCase.
func (m *MockRecordUseCase) FindByBackendID(ctx context.Context, backendID string) (*domain.Record, error) {
	args := m.Called(ctx, backendID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Record), args.Error(1)
}

// UpdateStatus mocks the UpdateStatus method of RecordUseCase.
func (m *MockRecordUseCase) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.RemoteStatus,
	result json.RawMessage,
) (bool, error) {
	args := m.Called(ctx, id, status, result)
	return args.Bool(0), args.Error(1)
}

// ListInFlight mocks the ListInFlight method of RecordUseCase.
func (m *MockRecordUseCase) ListInFlight(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Record, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Record), args.Error(1)
}
