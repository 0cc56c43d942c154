package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a map-backed Cache for unit tests and Redis-less deployments.
// Expired entries are dropped lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), clock: time.Now}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expiresAt.IsZero() && c.clock().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.clock().Add(ttl)
	}
	c.entries[key] = entry{value: stored, expiresAt: expiresAt}
	return nil
}

func (c *Memory) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *Memory) DeleteByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}
