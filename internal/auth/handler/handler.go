package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"crediflow/internal/auth"
	dErrors "crediflow/pkg/domain-errors"
	"crediflow/pkg/platform/httputil"
	"crediflow/pkg/requestcontext"
)

// Service defines the authentication operations the API exposes.
type Service interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
}

// LoginRequest is the HTTP request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	if r.Email == "" {
		return dErrors.New(dErrors.CodeBadRequest, "email is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeBadRequest, "password is required")
	}
	return nil
}

// LoginResponse is the HTTP response for POST /auth/login.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

// UserResponse is the principal portion of the login response.
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Handler wires authentication endpoints to the auth service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts authentication endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[LoginRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "login succeeded",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", result.User.ID,
		"role", result.User.Role,
	)
	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User: UserResponse{
			ID:    result.User.ID.String(),
			Email: result.User.Email,
			Role:  result.User.Role,
		},
	})
}
