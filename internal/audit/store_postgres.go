package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Postgres implements Store using the transactional outbox pattern. Each
// event is materialized into application_events for querying and written to
// the outbox in the same transaction; the relay publishes outbox rows to
// Kafka afterwards.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}

	aggregateType := "audit"
	aggregateID := event.ID.String()
	if event.ApplicationID != "" {
		aggregateType = "application"
		aggregateID = event.ApplicationID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO application_events (id, action, application_id, actor, request_id, detail, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, string(event.Action), event.ApplicationID, event.Actor, event.RequestID, detail, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, aggregateType, aggregateID, string(event.Action), payload, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

func (s *Postgres) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, application_id, actor, request_id, detail, created_at
		FROM application_events
		WHERE application_id = $1
		ORDER BY created_at DESC
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Postgres) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, application_id, actor, request_id, detail, created_at
		FROM application_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Postgres) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		if err := rows.Scan(&entry.ID, &entry.AggregateType, &entry.AggregateID,
			&entry.EventType, &entry.Payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

func (s *Postgres) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	asText := make([]string, len(ids))
	for i, id := range ids {
		asText[i] = id.String()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`, time.Now(), asText)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			event         Event
			action        string
			applicationID sql.NullString
			detail        []byte
		)
		if err := rows.Scan(&event.ID, &action, &applicationID, &event.Actor,
			&event.RequestID, &detail, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = Action(action)
		if applicationID.Valid {
			event.ApplicationID = applicationID.String
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
