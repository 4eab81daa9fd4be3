package lasttag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"gate-attendance-backend/internal/apperr"
)

const slotKey = "last-tag"

// Memory keeps the slot in process memory.
type Memory struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemory returns an in-process slot whose entries expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{cache: cache.New(ttl, 2*ttl), ttl: ttl}
}

func (m *Memory) Put(_ context.Context, e Entry) error {
	if e.Tag == "" {
		return apperr.Invalid("rfid tag is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Set(slotKey, e, m.ttl)
	return nil
}

func (m *Memory) Take(_ context.Context, clear bool) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cache.Get(slotKey)
	if !ok {
		return Entry{}, fmt.Errorf("%w: no recent tag", apperr.ErrNotFound)
	}
	if clear {
		m.cache.Delete(slotKey)
	}
	return v.(Entry), nil
}

func (m *Memory) Healthy(context.Context) bool { return true }
