package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"crediflow/pkg/platform/sentinel"
)

// InMemory is a map-backed Store for unit tests and local development.
// Aggregates are cloned on the way in and out so callers never share
// mutable state with the store.
type InMemory struct {
	mu   sync.RWMutex
	apps map[uuid.UUID]*Application
}

func NewInMemory() *InMemory {
	return &InMemory{apps: make(map[uuid.UUID]*Application)}
}

func (s *InMemory) Create(_ context.Context, app *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ID]; exists {
		return sentinel.ErrConflict
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

func (s *InMemory) FindByFilters(_ context.Context, filters Filters) ([]*Application, int, error) {
	filters = filters.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Application
	for _, app := range s.apps {
		if filters.Country != nil && app.CountryCode != *filters.Country {
			continue
		}
		if filters.Status != nil && app.Status != *filters.Status {
			continue
		}
		matched = append(matched, app)
	}

	// Newest first, matching the Postgres ordering.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	offset := (filters.Page - 1) * filters.Limit
	if offset >= total {
		return nil, total, nil
	}
	end := offset + filters.Limit
	if end > total {
		end = total
	}

	page := make([]*Application, 0, end-offset)
	for _, app := range matched[offset:end] {
		page = append(page, app.Clone())
	}
	return page, total, nil
}

func (s *InMemory) UpdateStatus(_ context.Context, id uuid.UUID, status Status, expectedUpdatedAt, now time.Time) (*Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !app.UpdatedAt.Equal(expectedUpdatedAt) {
		return nil, sentinel.ErrConflict
	}
	app.Status = status
	app.UpdatedAt = now
	return app.Clone(), nil
}

func (s *InMemory) UpdateBankData(_ context.Context, id uuid.UUID, snapshot *BankSnapshot, now time.Time) (*Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := app.ReplaceBankData(snapshot, now); err != nil {
		return nil, err
	}
	return app.Clone(), nil
}

func (s *InMemory) ExistsByDocumentAndCountry(_ context.Context, documentID string, country CountryCode) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, app := range s.apps {
		if app.CountryCode == country && app.DocumentID == documentID {
			return true, nil
		}
	}
	return false, nil
}
