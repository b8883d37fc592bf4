package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	recordDomain "github.com/allisson/healthsync/internal/record/domain"
	"github.com/allisson/healthsync/internal/syncpolicy"
)

// MetricSyncer runs one catch-up for a metric.
type MetricSyncer interface {
	SyncMetric(ctx context.Context, userID uuid.UUID, key syncpolicy.MetricKey) (*syncpolicy.SyncReport, error)
}

// RunSyncMetric pulls recent device samples for one metric into the local store,
// unless the metric was captured recently enough.
func RunSyncMetric(
	ctx context.Context,
	syncer MetricSyncer,
	logger *slog.Logger,
	writer io.Writer,
	userID string,
	recordType string,
	metric string,
	format string,
) error {
	id, err := parseUserID(userID)
	if err != nil {
		return err
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	parsedType, err := recordDomain.ParseRecordType(recordType)
	if err != nil {
		return err
	}

	key := syncpolicy.MetricKey{Type: parsedType, Metric: metric}
	logger.Info("syncing metric",
		slog.String("user_id", id.String()),
		slog.String("metric", key.String()),
	)

	report, err := syncer.SyncMetric(ctx, id, key)
	if err != nil {
		return fmt.Errorf("failed to sync metric: %w", err)
	}

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"metric":     key.String(),
			"skipped":    report.Skipped,
			"fetched":    report.Fetched,
			"created":    report.Created,
			"duplicates": report.Duplicates,
			"rejected":   report.Rejected,
		})
	}

	if report.Skipped {
		_, _ = fmt.Fprintf(writer, "Skipped %s: captured recently\n", key)
		return nil
	}
	_, _ = fmt.Fprintf(writer,
		"Synced %s: %d fetched, %d created, %d duplicate(s), %d rejected\n",
		key, report.Fetched, report.Created, report.Duplicates, report.Rejected,
	)
	return nil
}
