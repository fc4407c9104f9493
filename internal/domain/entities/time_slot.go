package entities

import (
	"fmt"
	"time"
)

const slotLayout = "15:04"

// SlotSchedule is the fixed daily sequence of bookable time slots
type SlotSchedule struct {
	slots []string
}

// NewSlotSchedule builds the slots from start to end inclusive, every interval
func NewSlotSchedule(start, end string, interval time.Duration) (SlotSchedule, error) {
	from, err := time.Parse(slotLayout, start)
	if err != nil {
		return SlotSchedule{}, fmt.Errorf("invalid day start %q: %w", start, err)
	}
	to, err := time.Parse(slotLayout, end)
	if err != nil {
		return SlotSchedule{}, fmt.Errorf("invalid day end %q: %w", end, err)
	}
	if interval <= 0 {
		return SlotSchedule{}, fmt.Errorf("slot interval must be positive")
	}

	var slots []string
	for t := from; !t.After(to); t = t.Add(interval) {
		slots = append(slots, t.Format(slotLayout))
	}
	return SlotSchedule{slots: slots}, nil
}

// DefaultSlotSchedule is 07:00 to 16:30 in 30 minute steps
func DefaultSlotSchedule() SlotSchedule {
	s, _ := NewSlotSchedule("07:00", "16:30", 30*time.Minute)
	return s
}

// Slots returns a copy of the daily slot sequence
func (s SlotSchedule) Slots() []string {
	return append([]string(nil), s.slots...)
}

// First returns the first slot of the day
func (s SlotSchedule) First() string {
	if len(s.slots) == 0 {
		return ""
	}
	return s.slots[0]
}

// From returns the slots at or after target, in order
func (s SlotSchedule) From(target string) []string {
	for i, slot := range s.slots {
		// HH:MM strings compare in time order.
		if slot >= target {
			return append([]string(nil), s.slots[i:]...)
		}
	}
	return nil
}

// ParseSlotTime validates an HH:MM slot and returns it normalized
func ParseSlotTime(value string) (string, error) {
	t, err := time.Parse(slotLayout, value)
	if err != nil {
		return "", fmt.Errorf("must be HH:MM, got %q", value)
	}
	return t.Format(slotLayout), nil
}

// ParseClinicDate validates a YYYY-MM-DD date
func ParseClinicDate(value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be YYYY-MM-DD, got %q", value)
	}
	return t, nil
}
