package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"crediflow/internal/application"
	"crediflow/internal/audit"
	"crediflow/internal/evaluation/metrics"
	"crediflow/internal/notification"
	"crediflow/internal/platform/broadcast"
	"crediflow/internal/platform/queue"
	"crediflow/internal/rules"
	"crediflow/pkg/platform/sentinel"
	"crediflow/pkg/requestcontext"
)

// CacheInvalidator drops cached state for one application. The application
// service provides the production implementation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, id uuid.UUID)
}

// Service orchestrates risk evaluation. The queued pipeline (Evaluate) and
// the webhook reconciliation pipeline (Reconcile) share one verdict
// application path so both enforce the same transition and notification
// semantics.
type Service struct {
	store       application.Store
	providers   ProviderSet
	invalidator CacheInvalidator
	broadcaster broadcast.Broadcaster
	enqueuer    queue.Enqueuer
	recorder    *audit.Recorder
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

func NewService(store application.Store, providers ProviderSet, invalidator CacheInvalidator,
	broadcaster broadcast.Broadcaster, enqueuer queue.Enqueuer, recorder *audit.Recorder,
	logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:       store,
		providers:   providers,
		invalidator: invalidator,
		broadcaster: broadcaster,
		enqueuer:    enqueuer,
		recorder:    recorder,
		logger:      logger,
		metrics:     m,
		tracer:      otel.Tracer("crediflow/internal/evaluation"),
	}
}

// Evaluate runs the asynchronous pipeline for one application: fetch bureau
// data, persist the snapshot, evaluate the country rule and apply the
// verdict. Errors propagate so the queue redelivers with backoff.
func (s *Service) Evaluate(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "evaluation.evaluate",
		trace.WithAttributes(attribute.String("application.id", id.String())))
	defer span.End()

	app, err := s.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load application %s: %w", id, err)
	}
	span.SetAttributes(attribute.String("application.country", string(app.CountryCode)))

	provider, err := s.providers.ForCountry(app.CountryCode)
	if err != nil {
		return err
	}

	fetchStart := time.Now()
	snapshot, err := provider.Fetch(ctx, app)
	s.metrics.ObserveProviderLatency(provider.Name(), time.Since(fetchStart))
	if err != nil {
		return fmt.Errorf("fetch %s data: %w", provider.Name(), err)
	}

	withData, err := s.store.UpdateBankData(ctx, id, snapshot, time.Now())
	if err != nil {
		return fmt.Errorf("persist bank snapshot: %w", err)
	}

	rule, err := rules.ForCountry(app.CountryCode)
	if err != nil {
		return err
	}
	verdict := rule.EvaluateRisk(withData, snapshot)
	span.SetAttributes(
		attribute.Bool("verdict.approved", verdict.Approved),
		attribute.Int("verdict.score", verdict.Score),
	)

	_, err = s.applyVerdict(ctx, withData, verdict, provider.Name())
	return err
}

// Reconcile applies an externally delivered bank evaluation. Duplicate
// deliveries (same evaluatedAt as the stored snapshot) are discarded without
// mutating anything.
func (s *Service) Reconcile(ctx context.Context, id uuid.UUID, rawBankData []byte, deliveredBy string) (*application.Application, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.reconcile",
		trace.WithAttributes(attribute.String("application.id", id.String())))
	defer span.End()

	app, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	snapshot, err := application.DecodeBankSnapshot(app.CountryCode, rawBankData)
	if err != nil {
		return nil, err
	}

	if app.BankData != nil && app.BankData.EvaluatedAt() == snapshot.EvaluatedAt() {
		s.metrics.IncrementWebhookDiscarded()
		s.logger.Info("discarding duplicate webhook delivery",
			"application_id", id, "evaluated_at", snapshot.EvaluatedAt())

		event := audit.NewEvent(audit.ActionWebhookDiscarded, requestcontext.Now(ctx))
		event.ApplicationID = id.String()
		event.Actor = deliveredBy
		event.Detail = map[string]any{"evaluatedAt": snapshot.EvaluatedAt()}
		s.recorder.Record(ctx, event)
		return app, nil
	}

	withData, err := s.store.UpdateBankData(ctx, id, snapshot, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	event := audit.NewEvent(audit.ActionWebhookReceived, requestcontext.Now(ctx))
	event.ApplicationID = id.String()
	event.Actor = deliveredBy
	event.Detail = map[string]any{
		"provider":    snapshot.ProviderTag(),
		"evaluatedAt": snapshot.EvaluatedAt(),
	}
	s.recorder.Record(ctx, event)

	rule, err := rules.ForCountry(app.CountryCode)
	if err != nil {
		return nil, err
	}
	verdict := rule.EvaluateRisk(withData, snapshot)

	final, err := s.applyVerdict(ctx, withData, verdict, deliveredBy)
	if err != nil {
		// A concurrent decision won the status write; the snapshot is
		// persisted, so ack the delivery with whatever state landed.
		s.logger.Warn("webhook verdict lost the status write",
			"application_id", id, "error", err)
		if fresh, ferr := s.store.FindByID(ctx, id); ferr == nil {
			return fresh, nil
		}
		return withData, nil
	}
	return final, nil
}

// applyVerdict infers the target status, writes it when the transition is
// legal, and emits cache invalidation, realtime events and the audit trail.
// A lost write race on the status comes back as sentinel.ErrConflict so the
// queued pipeline can retry against fresh state; the bank snapshot is already
// persisted at this point, so invalidation and the risk-evaluated event fire
// even when the status write is skipped.
func (s *Service) applyVerdict(ctx context.Context, app *application.Application, verdict rules.Verdict, actor string) (*application.Application, error) {
	target := rules.StatusFromVerdict(verdict)
	previous := app.Status
	final := app

	switch {
	case !app.CanTransitionTo(target):
		s.metrics.IncrementSkippedTransition("terminal")
		s.logger.Info("skipping illegal status transition",
			"application_id", app.ID, "from", previous, "to", target)
	default:
		updated, err := s.store.UpdateStatus(ctx, app.ID, target, app.UpdatedAt, time.Now())
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			s.metrics.IncrementSkippedTransition("conflict")
			if s.invalidator != nil {
				s.invalidator.Invalidate(ctx, app.ID)
			}
			return app, fmt.Errorf("apply verdict to application %s: %w", app.ID, err)
		case err != nil:
			return app, fmt.Errorf("persist status of application %s: %w", app.ID, err)
		default:
			final = updated
		}
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, app.ID)
	}

	s.publish(ctx, broadcast.TargetApplication, app.ID.String(), broadcast.EventRiskEvaluated, map[string]any{
		"applicationId": app.ID.String(),
		"status":        string(final.Status),
		"approved":      verdict.Approved,
		"score":         verdict.Score,
		"reason":        verdict.Reason,
	})

	if final.Status != previous && final.Status.IsTerminal() {
		notification.Enqueue(ctx, s.enqueuer, s.logger, notification.Message{
			ApplicationID: final.ID.String(),
			Status:        string(final.Status),
			CountryCode:   string(final.CountryCode),
			FullName:      final.FullName,
		})
	}

	if final.Status != previous {
		change := map[string]any{
			"applicationId": app.ID.String(),
			"oldStatus":     string(previous),
			"newStatus":     string(final.Status),
			"changedAt":     time.Now().UTC().Format(evaluatedAtLayout),
		}
		s.publish(ctx, broadcast.TargetApplication, app.ID.String(), broadcast.EventStatusChanged, change)
		s.publish(ctx, broadcast.TargetCountry, string(final.CountryCode), broadcast.EventStatusChanged, change)
	}

	event := audit.NewEvent(audit.ActionRiskEvaluated, time.Now())
	event.ApplicationID = app.ID.String()
	event.Actor = actor
	event.Detail = map[string]any{
		"approved": verdict.Approved,
		"reason":   verdict.Reason,
		"score":    verdict.Score,
		"status":   string(final.Status),
	}
	s.recorder.Record(ctx, event)

	s.metrics.IncrementEvaluation(string(app.CountryCode), string(final.Status))
	s.logger.Info("risk evaluation applied",
		"application_id", app.ID, "approved", verdict.Approved, "status", final.Status)
	return final, nil
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
