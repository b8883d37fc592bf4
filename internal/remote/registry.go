package remote

import (
	"context"

	apperrors "github.com/allisson/healthsync/internal/errors"
	outboxDomain "github.com/allisson/healthsync/internal/outbox/domain"
	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

// RecordClient delivers records to the backend.
type RecordClient interface {
	Create(ctx context.Context, record *recordDomain.Record) (*Ack, error)
	Update(ctx context.Context, record *recordDomain.Record) (*Ack, error)
}

// Handler delivers one record for a registered event type.
type Handler func(ctx context.Context, record *recordDomain.Record) (*Ack, error)

// Registry maps outbox event types to their backend calls.
type Registry struct {
	handlers map[outboxDomain.EventType]Handler
}

// NewRegistry registers create and update handlers for every record type.
func NewRegistry(client RecordClient) *Registry {
	r := &Registry{handlers: make(map[outboxDomain.EventType]Handler)}

	update := func(ctx context.Context, record *recordDomain.Record) (*Ack, error) {
		// An edit made before the first delivery was acknowledged has nothing to update yet.
		if !record.HasBackendID() {
			return client.Create(ctx, record)
		}
		return client.Update(ctx, record)
	}

	for _, recordType := range recordDomain.RecordTypes {
		r.Register(outboxDomain.NewEventType(recordType, outboxDomain.OperationCreate), client.Create)
		r.Register(outboxDomain.NewEventType(recordType, outboxDomain.OperationUpdate), update)
	}
	return r
}

// Register sets the handler for eventType, replacing any previous one.
func (r *Registry) Register(eventType outboxDomain.EventType, handler Handler) {
	r.handlers[eventType] = handler
}

// Dispatch delivers record for event. Failures that retrying cannot fix are returned as
// outbox permanent errors.
func (r *Registry) Dispatch(
	ctx context.Context,
	event *outboxDomain.OutboxEvent,
	record *recordDomain.Record,
) (*outboxDomain.Delivery, error) {
	handler, ok := r.handlers[event.EventType]
	if !ok {
		return nil, outboxDomain.NewPermanentError(apperrors.Wrapf(ErrUnknownEventType, "%q", event.EventType))
	}

	ack, err := handler(ctx, record)
	if err != nil {
		if IsPermanent(err) {
			return nil, outboxDomain.NewPermanentError(err)
		}
		return nil, err
	}

	status, err := recordDomain.ParseRemoteStatus(ack.Status)
	if err != nil {
		status = recordDomain.RemoteStatusNone
	}

	return &outboxDomain.Delivery{
		BackendID:       ack.BackendID,
		ServerTimestamp: ack.ServerTimestamp,
		RemoteStatus:    status,
	}, nil
}
