package entities

import (
	"time"

	"github.com/google/uuid"
)

// QueueEventAction discriminates queue status events
type QueueEventAction string

const (
	QueueEventUpdated   QueueEventAction = "updated"
	QueueEventCompleted QueueEventAction = "completed"
)

// QueueStatusEvent carries the full updated entry to dashboards
type QueueStatusEvent struct {
	ID        string           `json:"id"`
	Action    QueueEventAction `json:"action"`
	Entry     *QueueEntry      `json:"entry"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewQueueStatusEvent creates a new queue status event
func NewQueueStatusEvent(entry *QueueEntry, action QueueEventAction) *QueueStatusEvent {
	return &QueueStatusEvent{
		ID:        uuid.NewString(),
		Action:    action,
		Entry:     entry.Clone(),
		Timestamp: time.Now(),
	}
}

// Clone returns a copy that shares no mutable state with e
func (e *QueueStatusEvent) Clone() *QueueStatusEvent {
	c := *e
	c.Entry = e.Entry.Clone()
	return &c
}
