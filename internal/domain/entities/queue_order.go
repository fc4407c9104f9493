package entities

import (
	"cmp"
	"slices"
)

// OrderQueue returns entries in serving order: status precedence, then queue
// position, then room and queue id. The order is total, so the result does not
// depend on input order and dashboards sorting their local copy agree with the
// server listing.
func OrderQueue(entries []*QueueEntry) []*QueueEntry {
	ordered := slices.Clone(entries)
	slices.SortFunc(ordered, compareServingOrder)
	return ordered
}

func compareServingOrder(a, b *QueueEntry) int {
	return cmp.Or(
		cmp.Compare(a.Status.Precedence(), b.Status.Precedence()),
		cmp.Compare(a.QueuePosition, b.QueuePosition),
		cmp.Compare(a.RoomID, b.RoomID),
		cmp.Compare(a.ID, b.ID),
	)
}

// FrontPosition returns the lowest position among waiting entries of roomID,
// ignoring skipID. ok is false when there is no such entry.
func FrontPosition(entries []*QueueEntry, roomID, skipID string) (pos int, ok bool) {
	for _, e := range entries {
		if e.RoomID != roomID || e.ID == skipID || e.Status != QueueStatusWaiting {
			continue
		}
		if !ok || e.QueuePosition < pos {
			pos, ok = e.QueuePosition, true
		}
	}
	return pos, ok
}

// NextPosition returns the position for an entry joining the back of roomID's queue
func NextPosition(entries []*QueueEntry, roomID string) int {
	next := 1
	for _, e := range entries {
		if e.RoomID == roomID && e.QueuePosition >= next {
			next = e.QueuePosition + 1
		}
	}
	return next
}

// InConsultation returns the entry currently being served in roomID, if any
func InConsultation(entries []*QueueEntry, roomID string) *QueueEntry {
	for _, e := range entries {
		if e.RoomID == roomID && e.Status == QueueStatusInConsultation {
			return e
		}
	}
	return nil
}
