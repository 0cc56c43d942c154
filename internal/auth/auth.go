// Package auth issues and validates the HS256 tokens protecting the API.
// Users are a fixed seed set; passwords are bcrypt-hashed at startup so no
// plaintext credential lives beyond boot.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"crediflow/internal/audit"
	dErrors "crediflow/pkg/domain-errors"
	"crediflow/pkg/requestcontext"
)

// Roles ordered by privilege. Viewers read, analysts decide, admins do both
// plus administrative operations.
const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
	RoleViewer  = "viewer"
)

// User is an API principal.
type User struct {
	ID           uuid.UUID
	Email        string
	passwordHash []byte
	Role         string
}

type seedUser struct {
	id       string
	email    string
	password string
	role     string
}

// Stable ids so issued tokens survive server restarts.
var seedUsers = []seedUser{
	{"c647d0d1-89c5-4e2a-9229-5c8ebe3ebeff", "admin@credit.com", "admin123", RoleAdmin},
	{"2dd7061f-c2a0-43b7-8344-e7cf0b0a4af6", "analyst@credit.com", "analyst123", RoleAnalyst},
	{"f4a5e1b2-3c6d-4e8f-9a0b-1c2d3e4f5a6b", "viewer@credit.com", "viewer123", RoleViewer},
}

// Claims are the JWT claims carried by issued tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// Service authenticates users and signs tokens.
type Service struct {
	users      map[string]User
	signingKey []byte
	tokenTTL   time.Duration
	recorder   *audit.Recorder
	logger     *slog.Logger
}

func NewService(signingKey string, tokenTTL time.Duration, recorder *audit.Recorder, logger *slog.Logger) (*Service, error) {
	users := make(map[string]User, len(seedUsers))
	for _, seed := range seedUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password: %w", err)
		}
		users[seed.email] = User{
			ID:           uuid.MustParse(seed.id),
			Email:        seed.email,
			passwordHash: hash,
			Role:         seed.role,
		}
	}
	return &Service{
		users:      users,
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
		recorder:   recorder,
		logger:     logger,
	}, nil
}

// Login verifies credentials and issues a signed token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	now := requestcontext.Now(ctx)

	user, ok := s.users[email]
	if ok {
		ok = bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)) == nil
	}
	if !ok {
		event := audit.NewEvent(audit.ActionLoginFailed, now)
		event.Actor = email
		s.recorder.Record(ctx, event)
		s.logger.Warn("login failed", "email", email)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}

	expiresAt := now.Add(s.tokenTTL)
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "sign token", err)
	}

	event := audit.NewEvent(audit.ActionLoginSucceeded, now)
	event.Actor = user.ID.String()
	event.Detail = map[string]any{"role": user.Role}
	s.recorder.Record(ctx, event)

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// ValidateToken parses and verifies a token string.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
