package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crediflow/internal/auth"
)

func newLoginRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	service, err := auth.NewService("test-signing-key", time.Hour, nil, logger)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(service, logger).Register(r)
	return r
}

func postLogin(router chi.Router, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
	return rec
}

func TestHandleLogin(t *testing.T) {
	router := newLoginRouter(t)

	t.Run("returns a token for valid credentials", func(t *testing.T) {
		rec := postLogin(router, `{"email":"admin@credit.com","password":"admin123"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.True(t, resp.ExpiresAt.After(time.Now()))
		assert.Equal(t, "admin@credit.com", resp.User.Email)
		assert.Equal(t, auth.RoleAdmin, resp.User.Role)
		assert.NotEmpty(t, resp.User.ID)
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		rec := postLogin(router, `{"email":"admin@credit.com","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing email is 400", func(t *testing.T) {
		rec := postLogin(router, `{"password":"admin123"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		rec := postLogin(router, `{"email":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
