package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	outboxDomain "github.com/allisson/healthsync/internal/outbox/domain"
	outboxUsecase "github.com/allisson/healthsync/internal/outbox/usecase"
)

// EventProcessor runs a single outbox pass.
type EventProcessor interface {
	ProcessEvents(ctx context.Context) (outboxUsecase.Summary, error)
}

// SessionLogin is the part of the session the CLI drives.
type SessionLogin interface {
	CurrentUserID() (uuid.UUID, bool)
	Login(userID uuid.UUID)
}

// CompletedPurger deletes completed outbox events.
type CompletedPurger interface {
	PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StatsReader counts a user's outbox events per status.
type StatsReader interface {
	Stats(ctx context.Context, userID uuid.UUID) (outboxDomain.StatusCounts, error)
}

// RunProcessOutbox delivers one batch of due outbox events for the session user.
// A non-empty userID logs that user in first.
func RunProcessOutbox(
	ctx context.Context,
	processor EventProcessor,
	sess SessionLogin,
	logger *slog.Logger,
	writer io.Writer,
	userID string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	if userID != "" {
		id, err := parseUserID(userID)
		if err != nil {
			return err
		}
		sess.Login(id)
	}

	current, ok := sess.CurrentUserID()
	if !ok {
		return fmt.Errorf("no user logged in: pass --user-id or set SESSION_USER_ID")
	}

	logger.Info("processing outbox events", slog.String("user_id", current.String()))

	summary, err := processor.ProcessEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to process outbox events: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"user_id":   current.String(),
			"fetched":   summary.Fetched,
			"completed": summary.Completed,
			"retried":   summary.Retried,
			"failed":    summary.Failed,
			"skipped":   summary.Skipped,
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer,
			"Processed %d event(s): %d completed, %d retried, %d failed, %d skipped\n",
			summary.Fetched, summary.Completed, summary.Retried, summary.Failed, summary.Skipped,
		)
	}

	logger.Info("outbox pass completed",
		slog.Int("fetched", summary.Fetched),
		slog.Int("completed", summary.Completed),
		slog.Int("failed", summary.Failed),
	)
	return nil
}

// RunPurgeOutbox deletes completed outbox events older than the given number of hours.
func RunPurgeOutbox(
	ctx context.Context,
	purger CompletedPurger,
	logger *slog.Logger,
	writer io.Writer,
	hours int,
	format string,
) error {
	if hours <= 0 {
		return fmt.Errorf("hours must be a positive number, got: %d", hours)
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("purging completed outbox events", slog.Int("hours", hours))

	count, err := purger.PurgeCompleted(ctx, time.Duration(hours)*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to purge outbox events: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{"count": count, "hours": hours}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Successfully purged %d completed event(s) older than %d hour(s)\n", count, hours)
	}

	logger.Info("purge completed", slog.Int64("count", count))
	return nil
}

// RunOutboxStats prints the number of outbox events per status for a user.
func RunOutboxStats(
	ctx context.Context,
	stats StatsReader,
	logger *slog.Logger,
	writer io.Writer,
	userID string,
	format string,
) error {
	id, err := parseUserID(userID)
	if err != nil {
		return err
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	counts, err := stats.Stats(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read outbox stats: %w", err)
	}

	pending := counts[outboxDomain.OutboxEventStatusPending]
	processing := counts[outboxDomain.OutboxEventStatusProcessing]
	completed := counts[outboxDomain.OutboxEventStatusCompleted]
	failed := counts[outboxDomain.OutboxEventStatusFailed]

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"user_id":    id.String(),
			"pending":    pending,
			"processing": processing,
			"completed":  completed,
			"failed":     failed,
		})
	}

	_, _ = fmt.Fprintf(writer, "Outbox events for %s\n", id)
	_, _ = fmt.Fprintf(writer, "  pending:    %d\n", pending)
	_, _ = fmt.Fprintf(writer, "  processing: %d\n", processing)
	_, _ = fmt.Fprintf(writer, "  completed:  %d\n", completed)
	_, _ = fmt.Fprintf(writer, "  failed:     %d\n", failed)

	logger.Debug("outbox stats read", slog.String("user_id", id.String()))
	return nil
}
