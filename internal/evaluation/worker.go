package evaluation

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"crediflow/internal/application"
	"crediflow/internal/platform/queue"
)

// Worker drains the risk-evaluation queue into the service. Errors
// propagate so the queue redelivers with backoff.
type Worker struct {
	service *Service
	logger  *slog.Logger
}

func NewWorker(service *Service, logger *slog.Logger) *Worker {
	return &Worker{service: service, logger: logger}
}

// Handle processes one risk-evaluation queue job.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	var req application.EvaluationRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		w.logger.Error("discard undecodable evaluation job", "job_id", job.ID, "error", err)
		return nil
	}
	id, err := uuid.Parse(req.ApplicationID)
	if err != nil {
		w.logger.Error("discard evaluation job with invalid id",
			"job_id", job.ID, "application_id", req.ApplicationID, "error", err)
		return nil
	}
	return w.service.Evaluate(ctx, id)
}
