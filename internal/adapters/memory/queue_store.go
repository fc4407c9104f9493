// Package memory provides process-local repositories for single-node
// deployments and tests. They honor the same per-room serialization and
// guarded-write contract as the PostgreSQL adapters.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
)

// QueueStore is an in-memory QueueRepository
type QueueStore struct {
	mu      sync.RWMutex
	entries map[string]*entities.QueueEntry
	// order keeps insertion order so listings are stable before sorting
	order []string

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	now func() time.Time
}

// NewQueueStore creates an empty in-memory queue store
func NewQueueStore() *QueueStore {
	return &QueueStore{
		entries: make(map[string]*entities.QueueEntry),
		locks:   make(map[string]chan struct{}),
		now:     time.Now,
	}
}

var _ repositories.QueueRepository = (*QueueStore)(nil)

// Seed stores entries as-is, bypassing the room lock. Intended for fixtures.
func (s *QueueStore) Seed(entries ...*entities.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.putLocked(e.Clone())
	}
}

func (s *QueueStore) putLocked(e *entities.QueueEntry) {
	if _, exists := s.entries[e.ID]; !exists {
		s.order = append(s.order, e.ID)
	}
	s.entries[e.ID] = e
}

// List retrieves the entries of one clinic day, optionally one room
func (s *QueueStore) List(ctx context.Context, filter repositories.QueueFilter) ([]*entities.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entities.QueueEntry
	for _, id := range s.order {
		e := s.entries[id]
		if e.QueueDate != filter.Date {
			continue
		}
		if filter.RoomID != nil && e.RoomID != *filter.RoomID {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

// GetByID retrieves a queue entry by ID
func (s *QueueStore) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, entities.NewQueueEntryNotFoundError(id)
	}
	return e.Clone(), nil
}

func (s *QueueStore) roomLock(roomID, date string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	key := date + "/" + roomID
	lock, ok := s.locks[key]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[key] = lock
	}
	return lock
}

// WithRoomLock runs fn holding the (roomID, date) lock. Writes are staged
// and become visible together when fn returns nil.
func (s *QueueStore) WithRoomLock(ctx context.Context, roomID, date string, fn func(ctx context.Context, tx repositories.QueueTx) error) error {
	lock := s.roomLock(roomID, date)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	tx := &queueTx{store: s, roomID: roomID, date: date, staged: make(map[string]*entities.QueueEntry)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tx.stagedOrder {
		s.putLocked(tx.staged[id])
	}
	return nil
}

type queueTx struct {
	store       *QueueStore
	roomID      string
	date        string
	staged      map[string]*entities.QueueEntry
	stagedOrder []string
}

func (t *queueTx) stage(e *entities.QueueEntry) {
	if _, ok := t.staged[e.ID]; !ok {
		t.stagedOrder = append(t.stagedOrder, e.ID)
	}
	t.staged[e.ID] = e
}

func (t *queueTx) current(id string) (*entities.QueueEntry, bool) {
	if e, ok := t.staged[id]; ok {
		return e, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	e, ok := t.store.entries[id]
	return e, ok
}

func (t *queueTx) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	e, ok := t.current(id)
	if !ok {
		return nil, entities.NewQueueEntryNotFoundError(id)
	}
	return e.Clone(), nil
}

func (t *queueTx) ListRoom(ctx context.Context) ([]*entities.QueueEntry, error) {
	room := t.roomID
	committed, err := t.store.List(ctx, repositories.QueueFilter{Date: t.date, RoomID: &room})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(committed))
	out := make([]*entities.QueueEntry, 0, len(committed)+len(t.staged))
	for _, e := range committed {
		seen[e.ID] = true
		if staged, ok := t.staged[e.ID]; ok {
			e = staged.Clone()
		}
		out = append(out, e)
	}
	for _, id := range t.stagedOrder {
		if !seen[id] {
			out = append(out, t.staged[id].Clone())
		}
	}
	return out, nil
}

func (t *queueTx) Create(ctx context.Context, entry *entities.QueueEntry) error {
	if entry.RoomID != t.roomID || entry.QueueDate != t.date {
		return repositories.ErrStaleEntry
	}
	if _, exists := t.current(entry.ID); exists {
		return repositories.ErrStaleEntry
	}

	now := t.store.now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.Version == 0 {
		entry.Version = 1
	}
	t.stage(entry.Clone())
	return nil
}

func (t *queueTx) UpdateStatus(ctx context.Context, id string, from, to entities.QueueStatus) (*entities.QueueEntry, error) {
	e, ok := t.current(id)
	if !ok || e.Status != from {
		return nil, repositories.ErrStaleEntry
	}

	if to == entities.QueueStatusInConsultation {
		room, err := t.ListRoom(ctx)
		if err != nil {
			return nil, err
		}
		if busy := entities.InConsultation(room, t.roomID); busy != nil && busy.ID != id {
			return nil, repositories.ErrStaleEntry
		}
	}

	updated := e.Clone()
	updated.Status = to
	updated.Version++
	updated.UpdatedAt = t.store.now()
	t.stage(updated)
	return updated.Clone(), nil
}

func (t *queueTx) UpdatePosition(ctx context.Context, id string, position int) (*entities.QueueEntry, error) {
	e, ok := t.current(id)
	if !ok || e.Status != entities.QueueStatusWaiting {
		return nil, repositories.ErrStaleEntry
	}

	updated := e.Clone()
	updated.QueuePosition = position
	updated.Version++
	updated.UpdatedAt = t.store.now()
	t.stage(updated)
	return updated.Clone(), nil
}
