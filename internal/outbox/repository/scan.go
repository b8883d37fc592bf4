// Package repository provides data persistence implementations for outbox entities.
//
// PostgreSQL, MySQL and SQLite implementations share the same statements modulo placeholder
// style and id encoding. Every method resolves its querier through database.GetTx() so event
// writes join the caller's record transaction.
package repository

import (
	"database/sql"

	"github.com/allisson/healthsync/internal/outbox/domain"
)

const outboxColumns = `id, event_type, entity_id, user_id, status, attempt_count, max_attempts,
			  last_attempt_at, next_retry_at, error_message, priority, created_at, completed_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.OutboxEvent, error) {
	var (
		event     domain.OutboxEvent
		eventType string
		status    string
	)

	err := row.Scan(
		&event.ID,
		&eventType,
		&event.EntityID,
		&event.UserID,
		&status,
		&event.AttemptCount,
		&event.MaxAttempts,
		&event.LastAttemptAt,
		&event.NextRetryAt,
		&event.ErrorMessage,
		&event.Priority,
		&event.CreatedAt,
		&event.CompletedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Unknown event types are kept as stored so the processor can fail them permanently.
	event.EventType = domain.EventType(eventType)

	if event.Status, err = domain.ParseOutboxEventStatus(status); err != nil {
		return nil, err
	}

	return &event, nil
}

func collectEvents(rows *sql.Rows) ([]*domain.OutboxEvent, error) {
	defer rows.Close() //nolint:errcheck

	events := make([]*domain.OutboxEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func collectCounts(rows *sql.Rows) (domain.StatusCounts, error) {
	defer rows.Close() //nolint:errcheck

	counts := domain.StatusCounts{
		domain.OutboxEventStatusPending:    0,
		domain.OutboxEventStatusProcessing: 0,
		domain.OutboxEventStatusCompleted:  0,
		domain.OutboxEventStatusFailed:     0,
	}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		parsed, err := domain.ParseOutboxEventStatus(status)
		if err != nil {
			return nil, err
		}
		counts[parsed] = count
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}
