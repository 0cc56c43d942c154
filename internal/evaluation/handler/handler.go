// Package handler exposes the bank-data webhook. External bureaus push
// evaluation results here when the pull pipeline missed them.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"crediflow/internal/application"
	apphandler "crediflow/internal/application/handler"
	"crediflow/internal/audit"
	"crediflow/internal/evaluation"
	dErrors "crediflow/pkg/domain-errors"
	"crediflow/pkg/platform/httputil"
	"crediflow/pkg/platform/sentinel"
	"crediflow/pkg/requestcontext"
)

// Service defines the reconciliation operation the webhook drives.
type Service interface {
	Reconcile(ctx context.Context, id uuid.UUID, rawBankData []byte, deliveredBy string) (*application.Application, error)
}

// WebhookRequest is the HTTP request body for POST /api/webhooks/bank-data.
type WebhookRequest struct {
	ApplicationID string          `json:"applicationId"`
	Provider      string          `json:"provider"`
	Status        string          `json:"status"`
	Data          json.RawMessage `json:"data"`
	Timestamp     string          `json:"timestamp"`

	parsedID uuid.UUID
}

const (
	deliveryStatusSuccess = "success"
	deliveryStatusError   = "error"
)

func (r *WebhookRequest) Validate() error {
	id, err := uuid.Parse(strings.TrimSpace(r.ApplicationID))
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "applicationId must be a valid uuid")
	}
	r.parsedID = id

	switch r.Provider {
	case evaluation.ProviderSerasa, evaluation.ProviderBuroCredito:
	default:
		return dErrors.New(dErrors.CodeBadRequest, "unknown provider")
	}
	switch r.Status {
	case deliveryStatusSuccess, deliveryStatusError:
	default:
		return dErrors.New(dErrors.CodeBadRequest, "status must be success or error")
	}
	if r.Status == deliveryStatusSuccess && len(r.Data) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "data is required for success deliveries")
	}
	return nil
}

// WebhookResponse acknowledges a delivery. Data is present only when the
// delivery mutated the application.
type WebhookResponse struct {
	Success bool                            `json:"success"`
	Data    *apphandler.ApplicationResponse `json:"data,omitempty"`
}

// Handler wires the webhook endpoint to the evaluation service.
type Handler struct {
	service  Service
	recorder *audit.Recorder
	logger   *slog.Logger
}

func New(service Service, recorder *audit.Recorder, logger *slog.Logger) *Handler {
	return &Handler{service: service, recorder: recorder, logger: logger}
}

// Register mounts the webhook endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/bank-data", h.HandleBankData)
}

// HandleBankData handles POST /api/webhooks/bank-data.
func (h *Handler) HandleBankData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[WebhookRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	// An error delivery carries no usable evaluation. Acknowledge it so the
	// bureau stops retrying, and keep the audit trail.
	if req.Status == deliveryStatusError {
		event := audit.NewEvent(audit.ActionWebhookDiscarded, requestcontext.Now(ctx))
		event.ApplicationID = req.parsedID.String()
		event.Actor = req.Provider
		event.Detail = map[string]any{"reason": "provider_error", "timestamp": req.Timestamp}
		h.recorder.Record(ctx, event)

		h.logger.WarnContext(ctx, "bureau reported a failed evaluation",
			"request_id", requestcontext.RequestID(ctx),
			"application_id", req.ApplicationID,
			"provider", req.Provider,
		)
		httputil.WriteJSON(w, http.StatusOK, WebhookResponse{Success: true})
		return
	}

	app, err := h.service.Reconcile(ctx, req.parsedID, req.Data, req.Provider)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "application not found"))
			return
		}
		h.logger.ErrorContext(ctx, "webhook reconciliation failed",
			"request_id", requestcontext.RequestID(ctx),
			"application_id", req.ApplicationID,
			"provider", req.Provider,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, WebhookResponse{
		Success: true,
		Data:    apphandler.FromApplication(app),
	})
}
