package audit

import (
	"context"
	"log/slog"

	"crediflow/internal/platform/queue"
	"crediflow/pkg/requestcontext"
)

// Recorder hands audit events to the audit queue. Recording never fails the
// calling operation; a dropped trail entry is logged, not surfaced.
type Recorder struct {
	enqueuer queue.Enqueuer
	logger   *slog.Logger
}

func NewRecorder(enqueuer queue.Enqueuer, logger *slog.Logger) *Recorder {
	return &Recorder{enqueuer: enqueuer, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil || r.enqueuer == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	job, err := queue.NewJob(queue.Audit, event, event.Timestamp)
	if err != nil {
		r.logger.Error("build audit job", "action", event.Action, "error", err)
		return
	}
	if err := r.enqueuer.Enqueue(ctx, job); err != nil {
		r.logger.Error("enqueue audit event", "action", event.Action, "error", err)
	}
}
