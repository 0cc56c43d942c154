package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"crediflow/internal/application"
	dErrors "crediflow/pkg/domain-errors"
	"crediflow/pkg/platform/httputil"
	"crediflow/pkg/platform/sentinel"
	"crediflow/pkg/requestcontext"
)

// Service defines the application operations the API exposes.
type Service interface {
	Create(ctx context.Context, params application.CreateParams) (*application.Application, error)
	Get(ctx context.Context, id uuid.UUID) (*application.Application, error)
	List(ctx context.Context, filters application.Filters) ([]*application.Application, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, target application.Status) (*application.Application, error)
}

// Handler wires application endpoints to the application service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an application handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts application endpoints on the router. decider guards the
// endpoints that change state on behalf of a human reviewer.
func (h *Handler) Register(r chi.Router, decider func(http.Handler) http.Handler) {
	r.Post("/applications", h.HandleCreate)
	r.Get("/applications", h.HandleList)
	r.Get("/applications/{id}", h.HandleGet)
	r.With(decider).Patch("/applications/{id}/status", h.HandleUpdateStatus)
}

// HandleCreate handles POST /api/applications.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := httputil.Decode[CreateRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.service.Create(ctx, req.ToParams())
	if err != nil {
		h.logger.ErrorContext(ctx, "application intake failed",
			"request_id", requestcontext.RequestID(ctx),
			"country", req.CountryCode,
			"error", err,
		)
		httputil.WriteError(w, translate(err))
		return
	}

	h.logger.InfoContext(ctx, "application accepted",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", app.ID,
		"country", app.CountryCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromApplication(app))
}

// HandleGet handles GET /api/applications/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid application id"))
		return
	}

	app, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, translate(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromApplication(app))
}

// HandleList handles GET /api/applications.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filters, err := filtersFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	apps, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "application listing failed",
			"request_id", requestcontext.RequestID(r.Context()), "error", err)
		httputil.WriteError(w, translate(err))
		return
	}

	items := make([]*ApplicationResponse, 0, len(apps))
	for _, app := range apps {
		items = append(items, FromApplication(app))
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{
		Items:      items,
		Total:      total,
		Page:       filters.Page,
		Limit:      filters.Limit,
		TotalPages: (total + filters.Limit - 1) / filters.Limit,
	})
}

// HandleUpdateStatus handles PATCH /api/applications/{id}/status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid application id"))
		return
	}
	req, ok := httputil.Decode[UpdateStatusRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.service.UpdateStatus(ctx, id, req.parsedStatus)
	if err != nil {
		h.logger.WarnContext(ctx, "status update rejected",
			"request_id", requestcontext.RequestID(ctx),
			"application_id", id,
			"target", req.Status,
			"error", err,
		)
		httputil.WriteError(w, translate(err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromApplication(app))
}

// translate maps store sentinels and domain transition failures onto the
// error envelope. Anything already carrying a code passes through.
func translate(err error) error {
	var transition *application.InvalidTransitionError
	switch {
	case errors.As(err, &transition):
		return dErrors.New(dErrors.CodeBadRequest, transition.Error())
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "application not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "application was modified concurrently, retry")
	default:
		return err
	}
}
