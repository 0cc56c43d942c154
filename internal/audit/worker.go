package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"crediflow/internal/platform/queue"
)

// Worker drains the audit queue into the store. Errors propagate so the
// queue redelivers with backoff.
type Worker struct {
	store  Store
	logger *slog.Logger
}

func NewWorker(store Store, logger *slog.Logger) *Worker {
	return &Worker{store: store, logger: logger}
}

// Handle processes one audit queue job.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	var event Event
	if err := json.Unmarshal(job.Payload, &event); err != nil {
		// A payload that cannot decode will never decode; do not retry.
		w.logger.Error("discard undecodable audit job", "job_id", job.ID, "error", err)
		return nil
	}
	if err := w.store.Append(ctx, event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
