// Package syncpolicy decides when a metric needs to be pulled from a device source and performs
// the trailing-window catch-up that feeds new samples into the record store.
package syncpolicy

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/healthsync/internal/errors"
	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

// MetricKey identifies a record type and its optional metric.
type MetricKey struct {
	Type   recordDomain.RecordType
	Metric string
}

func (k MetricKey) String() string {
	if k.Metric == "" {
		return string(k.Type)
	}
	return string(k.Type) + "/" + k.Metric
}

// LatestFinder returns the most recently created record for a metric.
type LatestFinder interface {
	FetchLatest(
		ctx context.Context,
		userID uuid.UUID,
		recordType recordDomain.RecordType,
		metric string,
	) (*recordDomain.Record, error)
}

// Policy decides whether a metric is stale enough to sync again.
type Policy struct {
	records LatestFinder
	now     func() time.Time
}

// NewPolicy creates a Policy backed by the local record store.
func NewPolicy(records LatestFinder) *Policy {
	return &Policy{
		records: records,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ShouldSync reports whether the newest stored record of key is at least threshold old.
// It is true when nothing was stored yet. Only the local store is consulted.
func (p *Policy) ShouldSync(
	ctx context.Context,
	userID uuid.UUID,
	key MetricKey,
	threshold time.Duration,
) (bool, error) {
	latest, err := p.records.FetchLatest(ctx, userID, key.Type, key.Metric)
	if err != nil {
		if apperrors.Is(err, recordDomain.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}

	return p.now().Sub(latest.CreatedAt) >= threshold, nil
}
