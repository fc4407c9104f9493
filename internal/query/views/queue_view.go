// Package views holds read-side replicas of the queue kept by dashboards.
package views

import (
	"sync"

	"github.com/zatekoja/clinicqueue/internal/domain/entities"
)

// QueueView is a dashboard's local copy of one clinic day's queue.
//
// Replace loads a full listing; Apply patches a single entry from a pushed
// event. Events for entries the view does not hold are ignored until the
// next Replace picks them up, and events older than the local copy are
// dropped by version.
type QueueView struct {
	mu      sync.RWMutex
	entries map[string]*entities.QueueEntry
}

// NewQueueView creates an empty view
func NewQueueView() *QueueView {
	return &QueueView{entries: make(map[string]*entities.QueueEntry)}
}

// Replace swaps the whole local copy for a fresh listing
func (v *QueueView) Replace(entries []*entities.QueueEntry) {
	next := make(map[string]*entities.QueueEntry, len(entries))
	for _, e := range entries {
		next[e.ID] = e.Clone()
	}

	v.mu.Lock()
	v.entries = next
	v.mu.Unlock()
}

// Apply patches the matching entry and reports whether the view changed
func (v *QueueView) Apply(event *entities.QueueStatusEvent) bool {
	if event == nil || event.Entry == nil {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	current, ok := v.entries[event.Entry.ID]
	if !ok || event.Entry.Version < current.Version {
		return false
	}

	patched := event.Entry.Clone()
	if patched.DisplayColor == "" {
		patched.DisplayColor = current.DisplayColor
	}
	v.entries[patched.ID] = patched
	return true
}

// Entries returns the local copy in serving order
func (v *QueueView) Entries() []*entities.QueueEntry {
	v.mu.RLock()
	out := make([]*entities.QueueEntry, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e.Clone())
	}
	v.mu.RUnlock()

	return entities.OrderQueue(out)
}

// Len returns the number of entries held
func (v *QueueView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}
