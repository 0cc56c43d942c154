package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crediflow/internal/application"
	"crediflow/pkg/platform/sentinel"
)

type stubService struct {
	apps        map[uuid.UUID]*application.Application
	createErr   error
	updateErr   error
	lastFilters application.Filters
	lastTarget  application.Status
}

func (s *stubService) Create(_ context.Context, params application.CreateParams) (*application.Application, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return application.New(params, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
}

func (s *stubService) Get(_ context.Context, id uuid.UUID) (*application.Application, error) {
	app, ok := s.apps[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app, nil
}

func (s *stubService) List(_ context.Context, filters application.Filters) ([]*application.Application, int, error) {
	s.lastFilters = filters
	apps := make([]*application.Application, 0, len(s.apps))
	for _, app := range s.apps {
		apps = append(apps, app)
	}
	return apps, len(apps), nil
}

func (s *stubService) UpdateStatus(_ context.Context, id uuid.UUID, target application.Status) (*application.Application, error) {
	s.lastTarget = target
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	app, ok := s.apps[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	app.Status = target
	return app, nil
}

func newRouter(service Service) chi.Router {
	r := chi.NewRouter()
	h := New(service, slog.New(slog.DiscardHandler))
	h.Register(r, func(next http.Handler) http.Handler { return next })
	return r
}

func seedApp(t *testing.T) *application.Application {
	t.Helper()
	app, err := application.New(application.CreateParams{
		CountryCode:     application.CountryBR,
		FullName:        "Ana Souza",
		DocumentID:      "52998224725",
		RequestedAmount: 10000,
		MonthlyIncome:   5000,
	}, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return app
}

func TestHandleCreate(t *testing.T) {
	t.Run("accepts a valid application", func(t *testing.T) {
		router := newRouter(&stubService{})
		body := `{"countryCode":"BR","fullName":"Ana Souza","documentId":"52998224725","requestedAmount":10000,"monthlyIncome":5000}`

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body)))

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp ApplicationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "pending", resp.Status)
		assert.Equal(t, "*******4725", resp.DocumentID)
		assert.Nil(t, resp.BankData)
	})

	t.Run("rejects an unsupported country", func(t *testing.T) {
		router := newRouter(&stubService{})
		body := `{"countryCode":"AR","fullName":"Ana","documentId":"1","requestedAmount":1,"monthlyIncome":1}`

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		router := newRouter(&stubService{})
		body := `{"countryCode":"BR","fullName":"Ana","documentId":"1","requestedAmount":1,"monthlyIncome":1,"status":"approved"}`

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps duplicate documents to conflict", func(t *testing.T) {
		router := newRouter(&stubService{createErr: sentinel.ErrConflict})
		body := `{"countryCode":"BR","fullName":"Ana","documentId":"52998224725","requestedAmount":1,"monthlyIncome":1}`

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body)))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHandleGet(t *testing.T) {
	app := seedApp(t)
	router := newRouter(&stubService{apps: map[uuid.UUID]*application.Application{app.ID: app}})

	t.Run("returns the masked application", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/applications/"+app.ID.String(), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ApplicationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, app.ID.String(), resp.ID)
		assert.Equal(t, "*******4725", resp.DocumentID)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/applications/"+uuid.NewString(), nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/applications/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleList(t *testing.T) {
	app := seedApp(t)
	service := &stubService{apps: map[uuid.UUID]*application.Application{app.ID: app}}
	router := newRouter(service)

	t.Run("returns the paged envelope", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/applications?country=BR&status=pending&page=2&limit=5", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Total)
		assert.Equal(t, 2, resp.Page)
		assert.Equal(t, 5, resp.Limit)
		assert.Equal(t, 1, resp.TotalPages)

		require.NotNil(t, service.lastFilters.Country)
		assert.Equal(t, application.CountryBR, *service.lastFilters.Country)
		require.NotNil(t, service.lastFilters.Status)
		assert.Equal(t, application.StatusPending, *service.lastFilters.Status)
	})

	t.Run("rejects an unknown status filter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/applications?status=archived", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a non-numeric page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/applications?page=one", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleUpdateStatus(t *testing.T) {
	t.Run("applies a legal transition", func(t *testing.T) {
		app := seedApp(t)
		service := &stubService{apps: map[uuid.UUID]*application.Application{app.ID: app}}
		router := newRouter(service)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch,
			"/applications/"+app.ID.String()+"/status", strings.NewReader(`{"status":"under_review"}`)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, application.StatusUnderReview, service.lastTarget)
	})

	t.Run("illegal transition is 400", func(t *testing.T) {
		app := seedApp(t)
		service := &stubService{
			apps:      map[uuid.UUID]*application.Application{app.ID: app},
			updateErr: &application.InvalidTransitionError{From: application.StatusApproved, To: application.StatusPending},
		}
		router := newRouter(service)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch,
			"/applications/"+app.ID.String()+"/status", strings.NewReader(`{"status":"pending"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("lost write race is 409", func(t *testing.T) {
		app := seedApp(t)
		service := &stubService{
			apps:      map[uuid.UUID]*application.Application{app.ID: app},
			updateErr: sentinel.ErrConflict,
		}
		router := newRouter(service)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch,
			"/applications/"+app.ID.String()+"/status", strings.NewReader(`{"status":"approved"}`)))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown status value is 400", func(t *testing.T) {
		app := seedApp(t)
		router := newRouter(&stubService{apps: map[uuid.UUID]*application.Application{app.ID: app}})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch,
			"/applications/"+app.ID.String()+"/status", strings.NewReader(`{"status":"archived"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
