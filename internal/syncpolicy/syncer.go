package syncpolicy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/healthsync/internal/errors"
	recordUsecase "github.com/allisson/healthsync/internal/record/usecase"
)

// DefaultWindow is how far back every catch-up re-reads the sample source.
const DefaultWindow = 7 * 24 * time.Hour

// Sample is one observation read from a device source.
type Sample struct {
	SourceID  string
	Timestamp time.Time
	Value     float64
	Unit      string
}

// SampleSource reads device samples recorded in [since, until).
type SampleSource interface {
	FetchRecentSamples(ctx context.Context, key MetricKey, since, until time.Time) ([]Sample, error)
}

// RecordSaver stores captured records.
type RecordSaver interface {
	Save(ctx context.Context, input recordUsecase.SaveInput) (*recordUsecase.SaveResult, error)
}

// SyncerConfig holds catch-up configuration.
type SyncerConfig struct {
	Threshold time.Duration
	Window    time.Duration
}

// SyncReport summarizes one SyncMetric call.
type SyncReport struct {
	Skipped    bool
	Fetched    int
	Created    int
	Duplicates int
	Rejected   int
}

// Syncer pulls a metric's recent samples into the record store when the policy allows it.
type Syncer struct {
	config  SyncerConfig
	policy  *Policy
	source  SampleSource
	records RecordSaver
	logger  *slog.Logger
	now     func() time.Time
}

// NewSyncer creates a Syncer. A zero Window uses DefaultWindow.
func NewSyncer(
	config SyncerConfig,
	policy *Policy,
	source SampleSource,
	records RecordSaver,
	logger *slog.Logger,
) *Syncer {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	return &Syncer{
		config:  config,
		policy:  policy,
		source:  source,
		records: records,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SyncMetric re-reads the whole trailing window and saves every sample under its source id,
// so samples seen by an earlier run are deduplicated by the store instead of being tracked
// with a last-synced marker.
func (s *Syncer) SyncMetric(ctx context.Context, userID uuid.UUID, key MetricKey) (*SyncReport, error) {
	if userID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}

	should, err := s.policy.ShouldSync(ctx, userID, key, s.config.Threshold)
	if err != nil {
		return nil, err
	}
	if !should {
		return &SyncReport{Skipped: true}, nil
	}

	until := s.now()
	since := until.Add(-s.config.Window)

	samples, err := s.source.FetchRecentSamples(ctx, key, since, until)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to fetch samples for %s", key)
	}

	report := &SyncReport{Fetched: len(samples)}
	for _, sample := range samples {
		result, err := s.saveSample(ctx, userID, key, sample)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrInvalidInput) {
				report.Rejected++
				if s.logger != nil {
					s.logger.Warn("sample rejected",
						slog.String("user_id", userID.String()),
						slog.String("metric", key.String()),
						slog.String("source_id", sample.SourceID),
						slog.Any("error", err),
					)
				}
				continue
			}
			return report, err
		}

		if result.Created {
			report.Created++
		} else {
			report.Duplicates++
		}
	}

	if s.logger != nil {
		s.logger.Info("metric synced",
			slog.String("user_id", userID.String()),
			slog.String("metric", key.String()),
			slog.Int("fetched", report.Fetched),
			slog.Int("created", report.Created),
			slog.Int("duplicates", report.Duplicates),
			slog.Int("rejected", report.Rejected),
		)
	}

	return report, nil
}

// sourceID falls back to a key derived from the sample time for sources without stable ids.
func sourceID(key MetricKey, sample Sample) string {
	if sample.SourceID != "" {
		return sample.SourceID
	}
	return fmt.Sprintf("%s@%d", key, sample.Timestamp.UnixNano())
}

func (s *Syncer) saveSample(
	ctx context.Context,
	userID uuid.UUID,
	key MetricKey,
	sample Sample,
) (*recordUsecase.SaveResult, error) {
	input, err := newSaveInput(userID, key, sample)
	if err != nil {
		return nil, err
	}
	return s.records.Save(ctx, input)
}

func newSaveInput(userID uuid.UUID, key MetricKey, sample Sample) (recordUsecase.SaveInput, error) {
	payload, err := json.Marshal(struct {
		Value float64 `json:"value"`
		Unit  string  `json:"unit,omitempty"`
	}{Value: sample.Value, Unit: sample.Unit})
	if err != nil {
		// NaN and infinite values have no JSON encoding.
		return recordUsecase.SaveInput{}, apperrors.Wrapf(apperrors.ErrInvalidInput, "failed to encode sample: %v", err)
	}

	id := sourceID(key, sample)
	return recordUsecase.SaveInput{
		UserID:     userID,
		Type:       key.Type,
		Metric:     key.Metric,
		Payload:    payload,
		SourceID:   &id,
		RecordedAt: sample.Timestamp,
	}, nil
}
