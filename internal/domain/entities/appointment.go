package entities

import (
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusArrived   AppointmentStatus = "arrived"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// Appointment is a booked visit. The queue core only counts them.
type Appointment struct {
	ID        string            `json:"id" db:"id"`
	PatientID string            `json:"patient_id" db:"patient_id"`
	Date      string            `json:"appointment_date" db:"appointment_date"`
	Time      string            `json:"appointment_time" db:"appointment_time"`
	RoomID    string            `json:"room_id" db:"room_id"`
	StaffID   string            `json:"staff_id" db:"staff_id"`
	Status    AppointmentStatus `json:"status" db:"status"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// SlotAvailability is the derived capacity of one time slot
type SlotAvailability struct {
	Time        string `json:"time"`
	Count       int    `json:"count"`
	MaxCapacity int    `json:"max_capacity"`
	Available   int    `json:"available"`
	IsFull      bool   `json:"is_full"`
	// FailOpen marks a default answer given while appointment data was unreachable.
	FailOpen bool `json:"fail_open,omitempty"`
}

// NewSlotAvailability derives availability from a booking count
func NewSlotAvailability(slot string, count, maxCapacity int) SlotAvailability {
	available := maxCapacity - count
	if available < 0 {
		available = 0
	}
	return SlotAvailability{
		Time:        slot,
		Count:       count,
		MaxCapacity: maxCapacity,
		Available:   available,
		IsFull:      available == 0,
	}
}
