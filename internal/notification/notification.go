// Package notification delivers applicant-facing messages for settled
// applications. Delivery is mocked: the worker logs what would be sent.
package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	"crediflow/internal/platform/queue"
	"crediflow/pkg/requestcontext"
)

// Message is the payload of a notification queue job.
type Message struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
	CountryCode   string `json:"countryCode"`
	FullName      string `json:"fullName"`
}

// Enqueue submits a notification for asynchronous delivery. Failures are
// logged, never surfaced: a missed notification must not fail the status
// change that triggered it.
func Enqueue(ctx context.Context, enqueuer queue.Enqueuer, logger *slog.Logger, msg Message) {
	if enqueuer == nil {
		return
	}
	job, err := queue.NewJob(queue.Notification, msg, requestcontext.Now(ctx))
	if err != nil {
		logger.Error("build notification job", "application_id", msg.ApplicationID, "error", err)
		return
	}
	if err := enqueuer.Enqueue(ctx, job); err != nil {
		logger.Error("enqueue notification", "application_id", msg.ApplicationID, "error", err)
	}
}

// Worker drains the notification queue.
type Worker struct {
	logger *slog.Logger
}

func NewWorker(logger *slog.Logger) *Worker {
	return &Worker{logger: logger}
}

// Handle processes one notification job.
func (w *Worker) Handle(_ context.Context, job queue.Job) error {
	var msg Message
	if err := json.Unmarshal(job.Payload, &msg); err != nil {
		w.logger.Error("discard undecodable notification job", "job_id", job.ID, "error", err)
		return nil
	}
	w.logger.Info("notification sent",
		"application_id", msg.ApplicationID,
		"status", msg.Status,
		"country", msg.CountryCode)
	return nil
}
