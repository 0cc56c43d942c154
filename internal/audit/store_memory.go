package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is a slice-backed Store for unit tests and Redis-less deployments.
type Memory struct {
	mu     sync.RWMutex
	events []Event
	seen   map[uuid.UUID]struct{}
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[uuid.UUID]struct{})}
}

func (s *Memory) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[event.ID]; ok {
		return nil
	}
	s.seen[event.ID] = struct{}{}
	s.events = append(s.events, event)
	return nil
}

func (s *Memory) ListByApplication(_ context.Context, applicationID uuid.UUID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, event := range s.events {
		if event.ApplicationID == applicationID.String() {
			out = append(out, event)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Memory) ListRecent(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}
