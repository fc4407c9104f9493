package repositories

import (
	"context"

	"github.com/zatekoja/clinicqueue/internal/domain/entities"
)

// QueueRepository defines the interface for queue entry data operations
type QueueRepository interface {
	// List retrieves the entries of one clinic day, optionally one room
	List(ctx context.Context, filter QueueFilter) ([]*entities.QueueEntry, error)

	// GetByID retrieves a queue entry by ID
	GetByID(ctx context.Context, id string) (*entities.QueueEntry, error)

	// WithRoomLock runs fn while holding the exclusive lock for (roomID, date).
	// Writes made through tx are committed only when fn returns nil.
	WithRoomLock(ctx context.Context, roomID, date string, fn func(ctx context.Context, tx QueueTx) error) error
}

// QueueTx is the set of operations available while a room lock is held
type QueueTx interface {
	// GetByID retrieves a queue entry by ID
	GetByID(ctx context.Context, id string) (*entities.QueueEntry, error)

	// ListRoom retrieves every entry of the locked room and day
	ListRoom(ctx context.Context) ([]*entities.QueueEntry, error)

	// Create inserts a new entry into the locked room and day
	Create(ctx context.Context, entry *entities.QueueEntry) error

	// UpdateStatus moves the entry from one status to another. It returns
	// ErrStaleEntry when the stored status no longer equals from.
	UpdateStatus(ctx context.Context, id string, from, to entities.QueueStatus) (*entities.QueueEntry, error)

	// UpdatePosition sets the entry's queue position
	UpdatePosition(ctx context.Context, id string, position int) (*entities.QueueEntry, error)
}

// QueueFilter defines filters for listing queue entries
type QueueFilter struct {
	Date   string
	RoomID *string
}
