package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action classifies audit events.
type Action string

const (
	ActionApplicationCreated Action = "application_created"
	ActionStatusChanged      Action = "status_changed"
	ActionRiskEvaluated      Action = "risk_evaluated"
	ActionWebhookReceived    Action = "webhook_received"
	ActionWebhookDiscarded   Action = "webhook_discarded"
	ActionLoginSucceeded     Action = "login_succeeded"
	ActionLoginFailed        Action = "login_failed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID            uuid.UUID      `json:"id"`
	Action        Action         `json:"action"`
	ApplicationID string         `json:"applicationId,omitempty"`
	Actor         string         `json:"actor,omitempty"`
	RequestID     string         `json:"requestId,omitempty"`
	Detail        map[string]any `json:"detail,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// NewEvent stamps an event with an id and timestamp.
func NewEvent(action Action, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: now,
	}
}
