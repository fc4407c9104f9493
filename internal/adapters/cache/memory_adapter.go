package cache

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/zatekoja/clinicqueue/internal/domain/providers"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryAdapter is a process-local CacheProvider for the memory deployment and tests
type MemoryAdapter struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryAdapter creates an empty in-process cache
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{items: make(map[string]memoryItem), now: time.Now}
}

var _ providers.CacheProvider = (*MemoryAdapter)(nil)

// Get retrieves a value from cache
func (a *MemoryAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	item, ok := a.items[key]
	if !ok || (!item.expiresAt.IsZero() && a.now().After(item.expiresAt)) {
		delete(a.items, key)
		return nil, fmt.Errorf("%w: %s", providers.ErrCacheMiss, key)
	}
	return append([]byte(nil), item.value...), nil
}

// Set stores a value in cache with expiration; zero means no expiry
func (a *MemoryAdapter) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	item := memoryItem{value: append([]byte(nil), value...)}
	if expirationSeconds > 0 {
		item.expiresAt = a.now().Add(time.Duration(expirationSeconds) * time.Second)
	}
	a.items[key] = item
	return nil
}

// Delete removes a value from cache
func (a *MemoryAdapter) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.items, key)
	return nil
}

// DeletePattern removes every key matching a glob pattern
func (a *MemoryAdapter) DeletePattern(ctx context.Context, pattern string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key := range a.items {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("invalid cache pattern %q: %w", pattern, err)
		}
		if matched {
			delete(a.items, key)
		}
	}
	return nil
}
