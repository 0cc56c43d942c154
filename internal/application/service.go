package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"crediflow/internal/application/metrics"
	"crediflow/internal/audit"
	"crediflow/internal/notification"
	"crediflow/internal/platform/broadcast"
	"crediflow/internal/platform/cache"
	"crediflow/internal/platform/config"
	"crediflow/internal/platform/queue"
	dErrors "crediflow/pkg/domain-errors"
	"crediflow/pkg/requestcontext"
)

// DocumentValidator checks a national document id for a jurisdiction. The
// rules package provides the production implementation.
type DocumentValidator interface {
	Validate(country CountryCode, documentID string) error
}

// EvaluationRequest is the payload of a risk-evaluation queue job.
type EvaluationRequest struct {
	ApplicationID string `json:"applicationId"`
}

// Service implements the application lifecycle: intake, lookup, listing and
// manual status updates. Risk evaluation itself runs asynchronously; intake
// only enqueues it.
type Service struct {
	store       Store
	cache       cache.Cache
	enqueuer    queue.Enqueuer
	validator   DocumentValidator
	recorder    *audit.Recorder
	broadcaster broadcast.Broadcaster
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewService(store Store, c cache.Cache, enqueuer queue.Enqueuer, validator DocumentValidator,
	recorder *audit.Recorder, broadcaster broadcast.Broadcaster, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:       store,
		cache:       c,
		enqueuer:    enqueuer,
		validator:   validator,
		recorder:    recorder,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     m,
	}
}

// Create validates intake, persists the aggregate in pending state and
// enqueues the risk evaluation.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Application, error) {
	if err := s.validator.Validate(params.CountryCode, params.DocumentID); err != nil {
		s.metrics.IncrementCreateRejected(string(params.CountryCode), "invalid_document")
		return nil, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}

	exists, err := s.store.ExistsByDocumentAndCountry(ctx, params.DocumentID, params.CountryCode)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "check for existing application", err)
	}
	if exists {
		s.metrics.IncrementCreateRejected(string(params.CountryCode), "duplicate")
		return nil, dErrors.New(dErrors.CodeConflict, "an application for this document already exists")
	}

	app, err := New(params, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, app); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "persist application", err)
	}

	s.invalidateLists(ctx)
	s.metrics.IncrementCreated(string(app.CountryCode))

	job, err := queue.NewJob(queue.RiskEvaluation, EvaluationRequest{ApplicationID: app.ID.String()}, app.CreatedAt)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "build evaluation job", err)
	}
	if err := s.enqueuer.Enqueue(ctx, job); err != nil {
		// The application is saved; evaluation can be re-triggered later.
		s.logger.Error("enqueue risk evaluation",
			"application_id", app.ID, "error", err)
	}

	s.publish(ctx, broadcast.TargetCountry, string(app.CountryCode), broadcast.EventApplicationCreated, map[string]any{
		"applicationId": app.ID.String(),
		"countryCode":   string(app.CountryCode),
		"status":        string(app.Status),
	})

	event := audit.NewEvent(audit.ActionApplicationCreated, app.CreatedAt)
	event.ApplicationID = app.ID.String()
	event.Actor = requestcontext.Subject(ctx)
	event.Detail = map[string]any{
		"country":         string(app.CountryCode),
		"requestedAmount": app.RequestedAmount,
	}
	s.recorder.Record(ctx, event)

	s.logger.Info("application created",
		"application_id", app.ID, "country", app.CountryCode)
	return app, nil
}

// Get returns one application, serving repeat lookups from the cache.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Application, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveLookupLatency(time.Since(start)) }()

	cached, err := cache.GetOrFetchJSON(ctx, s.cache, cache.ApplicationKey(id.String()), config.ApplicationCacheTTL,
		func(ctx context.Context) (cachedApplication, error) {
			app, err := s.store.FindByID(ctx, id)
			if err != nil {
				return cachedApplication{}, err
			}
			return toCached(app), nil
		})
	if err != nil {
		return nil, err
	}
	return fromCached(cached)
}

// List returns one page of applications with the unpaged match count.
func (s *Service) List(ctx context.Context, filters Filters) ([]*Application, int, error) {
	filters = filters.Normalize()

	var country, status string
	if filters.Country != nil {
		country = string(*filters.Country)
	}
	if filters.Status != nil {
		status = string(*filters.Status)
	}
	key := cache.ListKey(country, status, filters.Page, filters.Limit)

	page, err := cache.GetOrFetchJSON(ctx, s.cache, key, config.ListCacheTTL,
		func(ctx context.Context) (cachedPage, error) {
			apps, total, err := s.store.FindByFilters(ctx, filters)
			if err != nil {
				return cachedPage{}, err
			}
			items := make([]cachedApplication, 0, len(apps))
			for _, app := range apps {
				items = append(items, toCached(app))
			}
			return cachedPage{Items: items, Total: total}, nil
		})
	if err != nil {
		return nil, 0, err
	}

	apps := make([]*Application, 0, len(page.Items))
	for _, item := range page.Items {
		app, err := fromCached(item)
		if err != nil {
			return nil, 0, err
		}
		apps = append(apps, app)
	}
	return apps, page.Total, nil
}

// UpdateStatus applies a manual status change. Illegal transitions surface
// InvalidTransitionError; a lost write race surfaces sentinel.ErrConflict
// for the caller to retry.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, target Status) (*Application, error) {
	app, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.CanTransitionTo(target) {
		return nil, &InvalidTransitionError{From: app.Status, To: target}
	}

	now := requestcontext.Now(ctx)
	updated, err := s.store.UpdateStatus(ctx, id, target, app.UpdatedAt, now)
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, id)
	s.metrics.IncrementStatusUpdated(string(target))

	change := map[string]any{
		"applicationId": id.String(),
		"oldStatus":     string(app.Status),
		"newStatus":     string(updated.Status),
		"changedAt":     now.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	s.publish(ctx, broadcast.TargetApplication, id.String(), broadcast.EventStatusChanged, change)
	s.publish(ctx, broadcast.TargetCountry, string(updated.CountryCode), broadcast.EventStatusChanged, change)

	if updated.Status.IsTerminal() {
		notification.Enqueue(ctx, s.enqueuer, s.logger, notification.Message{
			ApplicationID: id.String(),
			Status:        string(updated.Status),
			CountryCode:   string(updated.CountryCode),
			FullName:      updated.FullName,
		})
	}

	event := audit.NewEvent(audit.ActionStatusChanged, now)
	event.ApplicationID = id.String()
	event.Actor = requestcontext.Subject(ctx)
	event.Detail = map[string]any{
		"from": string(app.Status),
		"to":   string(updated.Status),
	}
	s.recorder.Record(ctx, event)

	s.logger.Info("application status updated",
		"application_id", id, "from", app.Status, "to", updated.Status)
	return updated, nil
}

func (s *Service) publish(ctx context.Context, target, id, event string, data map[string]any) {
	msg, err := broadcast.NewMessage(target, id, event, data)
	if err != nil {
		return
	}
	if err := s.broadcaster.Publish(ctx, msg); err != nil {
		s.logger.Error("broadcast event", "event", event, "target", target, "error", err)
	}
}

// Invalidate drops the cached entry for one application and every cached
// listing page.
func (s *Service) Invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ApplicationKey(id.String())); err != nil {
		s.logger.Error("invalidate application cache", "application_id", id, "error", err)
	}
	s.invalidateLists(ctx)
}

func (s *Service) invalidateLists(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPrefix(ctx, cache.ListKeyPrefix); err != nil {
		s.logger.Error("invalidate list cache", "error", err)
	}
}

// cachedApplication is the JSON shape stored in the cache. The aggregate
// itself carries no tags; caching goes through this explicit form so the
// tagged-variant snapshot survives the round-trip.
type cachedApplication struct {
	ID              uuid.UUID       `json:"id"`
	CountryCode     CountryCode     `json:"countryCode"`
	FullName        string          `json:"fullName"`
	DocumentID      string          `json:"documentId"`
	RequestedAmount float64         `json:"requestedAmount"`
	MonthlyIncome   float64         `json:"monthlyIncome"`
	Status          Status          `json:"status"`
	BankData        json.RawMessage `json:"bankData,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type cachedPage struct {
	Items []cachedApplication `json:"items"`
	Total int                 `json:"total"`
}

func toCached(app *Application) cachedApplication {
	item := cachedApplication{
		ID:              app.ID,
		CountryCode:     app.CountryCode,
		FullName:        app.FullName,
		DocumentID:      app.DocumentID,
		RequestedAmount: app.RequestedAmount,
		MonthlyIncome:   app.MonthlyIncome,
		Status:          app.Status,
		CreatedAt:       app.CreatedAt,
		UpdatedAt:       app.UpdatedAt,
	}
	if app.BankData != nil {
		if raw, err := json.Marshal(app.BankData); err == nil {
			item.BankData = raw
		}
	}
	return item
}

func fromCached(item cachedApplication) (*Application, error) {
	var snapshot *BankSnapshot
	if len(item.BankData) > 0 {
		var err error
		snapshot, err = DecodeBankSnapshot(item.CountryCode, item.BankData)
		if err != nil {
			return nil, fmt.Errorf("decode cached bank data: %w", err)
		}
	}
	return Reconstitute(item.ID, item.CountryCode, item.FullName, item.DocumentID,
		item.RequestedAmount, item.MonthlyIncome, item.Status, snapshot,
		item.CreatedAt, item.UpdatedAt), nil
}
