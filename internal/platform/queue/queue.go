package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue names used across the service.
const (
	RiskEvaluation = "risk-evaluation"
	Audit          = "audit"
	Notification   = "notification"
)

// DefaultMaxAttempts bounds redelivery before a job lands on the dead list.
const DefaultMaxAttempts = 3

// Job is the envelope carried through a queue. Payload stays raw JSON so the
// queue layer never depends on domain types.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
}

// NewJob wraps payload into a Job bound for the named queue.
func NewJob(queueName string, payload any, now time.Time) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal job payload: %w", err)
	}
	return Job{
		ID:          uuid.NewString(),
		Queue:       queueName,
		Payload:     raw,
		MaxAttempts: DefaultMaxAttempts,
		EnqueuedAt:  now,
	}, nil
}

// Enqueuer submits jobs for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Handler processes one job. A returned error triggers redelivery with
// exponential backoff until MaxAttempts is exhausted.
type Handler func(ctx context.Context, job Job) error

// Backoff returns the delay before redelivering a job that has already been
// attempted the given number of times: 1s, 2s, 4s, ...
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Second * (1 << (attempts - 1))
}
