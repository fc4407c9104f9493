package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/providers"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
)

// CachedQueueAdapter wraps a QueueRepository with a short-lived listing cache.
// Single-entry reads and locked writes always go to the wrapped repository.
//
// Listings are keyed by a per-day generation token that every committed write
// replaces. A reader takes the token before reading the store, so a listing
// read before a commit is stored under a token no later reader asks for.
type CachedQueueAdapter struct {
	adapter repositories.QueueRepository
	cache   providers.CacheProvider
	ttl     int
	metrics *observability.Metrics
}

// NewCachedQueueAdapter creates a new cached queue adapter. ttlSeconds <= 0 disables caching.
func NewCachedQueueAdapter(adapter repositories.QueueRepository, cache providers.CacheProvider, ttlSeconds int, metrics *observability.Metrics) repositories.QueueRepository {
	return &CachedQueueAdapter{
		adapter: adapter,
		cache:   cache,
		ttl:     ttlSeconds,
		metrics: metrics,
	}
}

// queueGenerationTTL keeps a day's token well past any listing cached under it
const queueGenerationTTL = 24 * 60 * 60

func queueListCacheKey(filter repositories.QueueFilter, generation string) string {
	if filter.RoomID == nil {
		return fmt.Sprintf("queue:list:%s:%s:all", filter.Date, generation)
	}
	return fmt.Sprintf("queue:list:%s:%s:room:%s", filter.Date, generation, *filter.RoomID)
}

func queueGenerationKey(date string) string {
	return fmt.Sprintf("queue:gen:%s", date)
}

// generation returns the day's current token; "0" until the first write
func (a *CachedQueueAdapter) generation(ctx context.Context, date string) (string, error) {
	token, err := a.cache.Get(ctx, queueGenerationKey(date))
	if errors.Is(err, providers.ErrCacheMiss) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return string(token), nil
}

func queueDayCachePattern(date string) string {
	return fmt.Sprintf("queue:list:%s:*", date)
}

// List retrieves a clinic day's entries, from cache when fresh
func (a *CachedQueueAdapter) List(ctx context.Context, filter repositories.QueueFilter) ([]*entities.QueueEntry, error) {
	if a.ttl <= 0 {
		return a.adapter.List(ctx, filter)
	}

	gen, err := a.generation(ctx, filter.Date)
	if err != nil {
		log.Warn().Err(err).Str("queue_date", filter.Date).Msg("Queue listing cache unavailable")
		return a.adapter.List(ctx, filter)
	}

	key := queueListCacheKey(filter, gen)
	if cached, err := a.cache.Get(ctx, key); err == nil {
		var entries []*entities.QueueEntry
		if err := json.Unmarshal(cached, &entries); err == nil {
			observability.RecordCacheHit(ctx, a.metrics, "queue.list")
			return entries, nil
		}
		log.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cached queue listing")
	}
	observability.RecordCacheMiss(ctx, a.metrics, "queue.list")

	entries, err := a.adapter.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		if err := a.cache.Set(ctx, key, data, a.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache queue listing")
		}
	}
	return entries, nil
}

// GetByID retrieves a queue entry by ID from the wrapped repository
func (a *CachedQueueAdapter) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	return a.adapter.GetByID(ctx, id)
}

// WithRoomLock delegates to the wrapped repository and invalidates the day's
// listings once the write has committed.
func (a *CachedQueueAdapter) WithRoomLock(ctx context.Context, roomID, date string, fn func(ctx context.Context, tx repositories.QueueTx) error) error {
	if err := a.adapter.WithRoomLock(ctx, roomID, date, fn); err != nil {
		return err
	}

	if err := a.cache.Set(ctx, queueGenerationKey(date), []byte(uuid.NewString()), queueGenerationTTL); err != nil {
		log.Warn().Err(err).Str("queue_date", date).Msg("Failed to advance queue listing generation")
	}
	// Listings under older tokens are unreachable; dropping them only frees space.
	if err := a.cache.DeletePattern(ctx, queueDayCachePattern(date)); err != nil {
		log.Warn().Err(err).Str("queue_date", date).Msg("Failed to invalidate queue listings")
	}
	return nil
}
