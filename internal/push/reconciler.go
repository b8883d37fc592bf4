package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/metrics"
	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

// RecordStatusStore resolves records by backend id and applies remote statuses.
type RecordStatusStore interface {
	FindByBackendID(ctx context.Context, backendID string) (*recordDomain.Record, error)
	UpdateStatus(
		ctx context.Context,
		id uuid.UUID,
		status recordDomain.RemoteStatus,
		result json.RawMessage,
	) (bool, error)
}

// Reconciler applies remote updates to local records and signals subscribers.
type Reconciler struct {
	records  RecordStatusStore
	notifier *Notifier
	metrics  metrics.BusinessMetrics
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler. A nil businessMetrics disables instrumentation.
func NewReconciler(
	records RecordStatusStore,
	notifier *Notifier,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Reconciler {
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &Reconciler{
		records:  records,
		notifier: notifier,
		metrics:  businessMetrics,
		logger:   logger,
	}
}

// OnRemoteUpdate applies msg to the record acknowledged under msg.BackendID. Updates for
// records this store never acknowledged are ignored.
func (r *Reconciler) OnRemoteUpdate(ctx context.Context, msg Message) (err error) {
	start := time.Now()
	outcome := "ignored"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		r.metrics.RecordOperation(ctx, "push", "remote_update", outcome)
		r.metrics.RecordDuration(ctx, "push", "remote_update", time.Since(start), outcome)
	}()

	status, err := msg.RemoteStatus()
	if err != nil {
		return apperrors.Wrap(ErrInvalidMessage, err.Error())
	}

	record, err := r.records.FindByBackendID(ctx, msg.BackendID)
	if err != nil {
		if apperrors.Is(err, recordDomain.ErrRecordNotFound) {
			if r.logger != nil {
				r.logger.Info("remote update for unknown record",
					slog.String("backend_id", msg.BackendID),
					slog.String("status", msg.Status),
				)
			}
			return nil
		}
		return err
	}

	if record.RemoteStatus == status && len(msg.Result) == 0 {
		return nil
	}

	applied, err := r.records.UpdateStatus(ctx, record.ID, status, msg.Result)
	if err != nil {
		return err
	}
	if !applied {
		if r.logger != nil {
			r.logger.Debug("remote update not applied",
				slog.String("entity_id", record.ID.String()),
				slog.String("backend_id", msg.BackendID),
				slog.String("status", msg.Status),
			)
		}
		return nil
	}

	outcome = "success"
	if r.logger != nil {
		r.logger.Debug("remote update applied",
			slog.String("entity_id", record.ID.String()),
			slog.String("backend_id", msg.BackendID),
			slog.String("status", msg.Status),
		)
	}

	r.notifier.Notify(RefreshSignal{UserID: record.UserID, RecordID: record.ID, Type: record.Type})
	return nil
}
