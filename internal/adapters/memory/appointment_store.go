package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
)

// AppointmentStore is an in-memory AppointmentRepository
type AppointmentStore struct {
	mu           sync.RWMutex
	appointments []*entities.Appointment
}

// NewAppointmentStore creates an empty appointment store
func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{}
}

var _ repositories.AppointmentRepository = (*AppointmentStore)(nil)

// CountBySlots counts non-cancelled appointments per requested time
func (s *AppointmentStore) CountBySlots(ctx context.Context, q repositories.SlotCountQuery) (map[string]int, error) {
	wanted := make(map[string]bool, len(q.Times))
	for _, t := range q.Times {
		wanted[t] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, a := range s.appointments {
		if a.Date != q.Date || a.Status == entities.AppointmentStatusCancelled {
			continue
		}
		if len(wanted) > 0 && !wanted[a.Time] {
			continue
		}
		if q.RoomID != nil && a.RoomID != *q.RoomID {
			continue
		}
		if q.StaffID != nil && a.StaffID != *q.StaffID {
			continue
		}
		counts[a.Time]++
	}
	return counts, nil
}

// Create stores an appointment
func (s *AppointmentStore) Create(ctx context.Context, appointment *entities.Appointment) error {
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = time.Now()
	}
	c := *appointment

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = append(s.appointments, &c)
	return nil
}
