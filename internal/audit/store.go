package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists audit events. Append is idempotent on the event id so a
// redelivered queue job never produces a duplicate trail entry.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// OutboxEntry is one pending row of the transactional outbox. Payload is the
// JSON published to Kafka verbatim.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStore hands pending entries to the Kafka relay.
type OutboxStore interface {
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}
