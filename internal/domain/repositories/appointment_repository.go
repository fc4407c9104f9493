package repositories

import (
	"context"

	"github.com/zatekoja/clinicqueue/internal/domain/entities"
)

// AppointmentRepository defines the read side of appointment data the queue core needs
type AppointmentRepository interface {
	// CountBySlots returns the number of non-cancelled appointments per requested
	// time. Times without appointments may be absent from the result.
	CountBySlots(ctx context.Context, query SlotCountQuery) (map[string]int, error)

	// Create stores an appointment. Used by seeding and tests; booking itself
	// lives outside this service.
	Create(ctx context.Context, appointment *entities.Appointment) error
}

// SlotCountQuery scopes an appointment count
type SlotCountQuery struct {
	Date    string
	Times   []string
	RoomID  *string
	StaffID *string
}
