package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"crediflow/internal/application"
	"crediflow/internal/audit"
	"crediflow/internal/platform/broadcast"
	"crediflow/internal/platform/queue"
	"crediflow/pkg/platform/sentinel"
)

type stubProvider struct {
	name     string
	snapshot *application.BankSnapshot
	err      error
	calls    int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Fetch(context.Context, *application.Application) (*application.BankSnapshot, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.snapshot, nil
}

// conflictStore fails every status write as if a concurrent writer always
// lands first.
type conflictStore struct {
	application.Store
}

func (c *conflictStore) UpdateStatus(context.Context, uuid.UUID, application.Status, time.Time, time.Time) (*application.Application, error) {
	return nil, sentinel.ErrConflict
}

type recordingInvalidator struct {
	ids []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id uuid.UUID) {
	r.ids = append(r.ids, id)
}

type EvaluationSuite struct {
	suite.Suite
	store       *application.InMemory
	provider    *stubProvider
	invalidator *recordingInvalidator
	broadcaster *broadcast.Memory
	service     *Service
	ctx         context.Context
	now         time.Time
}

func TestEvaluationSuite(t *testing.T) {
	suite.Run(t, new(EvaluationSuite))
}

func (s *EvaluationSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	s.store = application.NewInMemory()
	s.provider = &stubProvider{name: "SERASA"}
	s.invalidator = &recordingInvalidator{}
	s.broadcaster = broadcast.NewMemory()
	q := queue.NewMemory(logger)
	s.service = NewService(s.store,
		ProviderSet{application.CountryBR: s.provider},
		s.invalidator, s.broadcaster, q,
		audit.NewRecorder(q, logger), logger, nil)
	s.ctx = context.Background()
	s.now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func (s *EvaluationSuite) createApplication(amount, income float64) *application.Application {
	s.T().Helper()
	app, err := application.New(application.CreateParams{
		CountryCode:     application.CountryBR,
		FullName:        "Ana Souza",
		DocumentID:      "52998224725",
		RequestedAmount: amount,
		MonthlyIncome:   income,
	}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, app))
	return app
}

func brazilSnapshot(score int, negativeHistory bool) *application.BankSnapshot {
	return &application.BankSnapshot{Brazil: &application.BrazilBankData{
		CreditScore:     score,
		TotalDebt:       1000,
		OpenAccounts:    2,
		NegativeHistory: negativeHistory,
		EvaluatedAt:     "2026-08-01T13:00:00.000Z",
		Provider:        "SERASA",
	}}
}

func (s *EvaluationSuite) subscribe() <-chan broadcast.Message {
	s.T().Helper()
	ctx, cancel := context.WithCancel(s.ctx)
	s.T().Cleanup(cancel)
	events, err := s.broadcaster.Subscribe(ctx)
	s.Require().NoError(err)
	return events
}

func (s *EvaluationSuite) receive(events <-chan broadcast.Message) broadcast.Message {
	s.T().Helper()
	select {
	case msg := <-events:
		return msg
	case <-time.After(time.Second):
		s.T().Fatal("expected a broadcast message")
		return broadcast.Message{}
	}
}

func (s *EvaluationSuite) TestEvaluate() {
	s.Run("approves a strong applicant", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)
		s.provider.snapshot = brazilSnapshot(750, false)

		events := s.subscribe()
		s.Require().NoError(s.service.Evaluate(s.ctx, app.ID))

		stored, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(application.StatusApproved, stored.Status)
		s.Require().NotNil(stored.BankData)
		s.Equal(750, stored.BankData.Brazil.CreditScore)
		s.Contains(s.invalidator.ids, app.ID)

		evaluated := s.receive(events)
		s.Equal(broadcast.EventRiskEvaluated, evaluated.Event)
		var payload map[string]any
		s.Require().NoError(json.Unmarshal(evaluated.Data, &payload))
		s.Equal(true, payload["approved"])
		s.Equal(float64(750), payload["score"])

		changed := s.receive(events)
		s.Equal(broadcast.EventStatusChanged, changed.Event)
		s.Equal(broadcast.TargetApplication, changed.Target)
		s.Equal(app.ID.String(), changed.ID)

		toCountry := s.receive(events)
		s.Equal(broadcast.EventStatusChanged, toCountry.Event)
		s.Equal(broadcast.TargetCountry, toCountry.Target)
		s.Equal(string(application.CountryBR), toCountry.ID)
	})

	s.Run("rejects a low score outright", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)
		s.provider.snapshot = brazilSnapshot(500, false)

		s.Require().NoError(s.service.Evaluate(s.ctx, app.ID))

		stored, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(application.StatusRejected, stored.Status)
	})

	s.Run("routes a high-score rejection to manual review", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)
		s.provider.snapshot = brazilSnapshot(650, true)

		s.Require().NoError(s.service.Evaluate(s.ctx, app.ID))

		stored, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(application.StatusUnderReview, stored.Status)
	})

	s.Run("settled application still receives fresh bank data", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)
		_, err := s.store.UpdateStatus(s.ctx, app.ID, application.StatusApproved, app.UpdatedAt, s.now.Add(time.Minute))
		s.Require().NoError(err)
		s.provider.snapshot = brazilSnapshot(500, true)

		s.Require().NoError(s.service.Evaluate(s.ctx, app.ID))
		s.Equal(1, s.provider.calls)

		stored, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(application.StatusApproved, stored.Status)
		s.Require().NotNil(stored.BankData)
		s.Equal(500, stored.BankData.Brazil.CreditScore)
	})

	s.Run("lost status write race propagates for redelivery", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)
		s.provider.snapshot = brazilSnapshot(750, false)
		s.service.store = &conflictStore{Store: s.store}

		err := s.service.Evaluate(s.ctx, app.ID)
		s.ErrorIs(err, sentinel.ErrConflict)
		s.Contains(s.invalidator.ids, app.ID)
	})

	s.Run("provider failure propagates for redelivery", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)
		s.provider.err = errors.New("bureau timeout")

		s.Error(s.service.Evaluate(s.ctx, app.ID))

		stored, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(application.StatusPending, stored.Status)
		s.Nil(stored.BankData)
	})

	s.Run("unknown application propagates for redelivery", func() {
		s.SetupTest()
		s.Error(s.service.Evaluate(s.ctx, uuid.New()))
	})
}

func (s *EvaluationSuite) TestReconcile() {
	payload := func(snapshot *application.BankSnapshot) []byte {
		raw, err := json.Marshal(snapshot)
		s.Require().NoError(err)
		return raw
	}

	s.Run("applies a fresh delivery", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)

		events := s.subscribe()
		updated, err := s.service.Reconcile(s.ctx, app.ID, payload(brazilSnapshot(750, false)), "SERASA")
		s.Require().NoError(err)
		s.Equal(application.StatusApproved, updated.Status)
		s.Require().NotNil(updated.BankData)

		evaluated := s.receive(events)
		s.Equal(broadcast.EventRiskEvaluated, evaluated.Event)
	})

	s.Run("duplicate delivery is discarded without mutation", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)

		first, err := s.service.Reconcile(s.ctx, app.ID, payload(brazilSnapshot(750, false)), "SERASA")
		s.Require().NoError(err)

		// Same evaluatedAt, different score: must be ignored entirely.
		replayed, err := s.service.Reconcile(s.ctx, app.ID, payload(brazilSnapshot(500, true)), "SERASA")
		s.Require().NoError(err)
		s.Equal(first.Status, replayed.Status)

		stored, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(750, stored.BankData.Brazil.CreditScore)
		s.Equal(first.UpdatedAt, stored.UpdatedAt)
	})

	s.Run("different evaluatedAt re-evaluates", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)

		_, err := s.service.Reconcile(s.ctx, app.ID, payload(brazilSnapshot(750, false)), "SERASA")
		s.Require().NoError(err)

		fresh := brazilSnapshot(500, false)
		fresh.Brazil.EvaluatedAt = "2026-08-01T14:00:00.000Z"
		updated, err := s.service.Reconcile(s.ctx, app.ID, payload(fresh), "SERASA")
		s.Require().NoError(err)

		// approved is terminal, so the status write is skipped but the
		// snapshot still updates.
		s.Equal(application.StatusApproved, updated.Status)
		stored, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(500, stored.BankData.Brazil.CreditScore)
	})

	s.Run("lost status write still acks with stored state", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)
		s.service.store = &conflictStore{Store: s.store}

		updated, err := s.service.Reconcile(s.ctx, app.ID, payload(brazilSnapshot(750, false)), "SERASA")
		s.Require().NoError(err)
		s.Equal(application.StatusPending, updated.Status)
		s.Require().NotNil(updated.BankData)
	})

	s.Run("missing evaluatedAt is rejected", func() {
		s.SetupTest()
		app := s.createApplication(10000, 5000)

		_, err := s.service.Reconcile(s.ctx, app.ID, []byte(`{"creditScore":700}`), "SERASA")
		s.Error(err)
	})

	s.Run("unknown application is not found", func() {
		s.SetupTest()
		_, err := s.service.Reconcile(s.ctx, uuid.New(), payload(brazilSnapshot(700, false)), "SERASA")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}
