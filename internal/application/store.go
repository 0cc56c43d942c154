package application

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Pagination bounds for list queries.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Filters narrows list queries. Nil fields match everything.
type Filters struct {
	Country *CountryCode
	Status  *Status
	Page    int
	Limit   int
}

// Normalize clamps paging values into the supported range.
func (f Filters) Normalize() Filters {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Store persists application aggregates. Implementations return
// sentinel.ErrNotFound for unknown ids and sentinel.ErrConflict when the
// updatedAt precondition on UpdateStatus fails.
//
// UpdateStatus takes the updatedAt value the caller observed when it loaded
// the aggregate; the write only lands if the row still carries it. Two
// concurrent evaluations therefore cannot both win the status write; the
// loser sees ErrConflict and retries against fresh state.
type Store interface {
	Create(ctx context.Context, app *Application) error
	FindByID(ctx context.Context, id uuid.UUID) (*Application, error)
	FindByFilters(ctx context.Context, filters Filters) ([]*Application, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, expectedUpdatedAt, now time.Time) (*Application, error)
	UpdateBankData(ctx context.Context, id uuid.UUID, snapshot *BankSnapshot, now time.Time) (*Application, error)
	ExistsByDocumentAndCountry(ctx context.Context, documentID string, country CountryCode) (bool, error)
}
