package entities

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"
)

// QueueStatus is the closed set of states a queue entry can be in
type QueueStatus string

const (
	QueueStatusWaiting        QueueStatus = "waiting"
	QueueStatusInConsultation QueueStatus = "in_consultation"
	QueueStatusDone           QueueStatus = "done"
	QueueStatusCancelled      QueueStatus = "cancelled"
)

// ParseQueueStatus converts a stored or transmitted value into a QueueStatus
func ParseQueueStatus(s string) (QueueStatus, error) {
	switch QueueStatus(s) {
	case QueueStatusWaiting, QueueStatusInConsultation, QueueStatusDone, QueueStatusCancelled:
		return QueueStatus(s), nil
	}
	return "", fmt.Errorf("unknown queue status %q", s)
}

// Precedence is the serving-order rank of the status; lower is served first.
func (s QueueStatus) Precedence() int {
	switch s {
	case QueueStatusInConsultation:
		return 1
	case QueueStatusWaiting:
		return 2
	case QueueStatusDone:
		return 3
	case QueueStatusCancelled:
		return 4
	}
	return 5
}

// IsTerminal reports whether no further transitions are accepted
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusDone || s == QueueStatusCancelled
}

// Label is the human readable status shown on dashboards
func (s QueueStatus) Label() string {
	switch s {
	case QueueStatusWaiting:
		return "Waiting"
	case QueueStatusInConsultation:
		return "In consultation"
	case QueueStatusDone:
		return "Done"
	case QueueStatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// UnmarshalJSON rejects statuses outside the closed set
func (s *QueueStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseQueueStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// QueueEntry is one patient's place in one room's queue for one clinic day
type QueueEntry struct {
	ID            string      `json:"queue_id" db:"id"`
	PatientID     string      `json:"patient_id" db:"patient_id"`
	PatientName   string      `json:"patient_name" db:"patient_name"`
	RoomID        string      `json:"room_id" db:"room_id"`
	DoctorID      string      `json:"doctor_id" db:"doctor_id"`
	DoctorName    string      `json:"doctor_name" db:"doctor_name"`
	AppointmentID *string     `json:"appointment_id,omitempty" db:"appointment_id"`
	QueueDate     string      `json:"queue_date" db:"queue_date"`
	QueueTime     string      `json:"queue_time" db:"queue_time"`
	QueuePosition int         `json:"queue_position" db:"queue_position"`
	Status        QueueStatus `json:"status" db:"status"`
	Version       int64       `json:"version" db:"version"`
	DisplayColor  string      `json:"display_color,omitempty" db:"-"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// Clone returns a copy that does not share the AppointmentID pointer
func (e *QueueEntry) Clone() *QueueEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.AppointmentID != nil {
		id := *e.AppointmentID
		c.AppointmentID = &id
	}
	return &c
}

// roomPalette holds the dashboard grouping colors
var roomPalette = []string{
	"#2563eb", "#16a34a", "#d97706", "#dc2626",
	"#7c3aed", "#0891b2", "#db2777", "#65a30d",
}

// RoomColor maps a room to a stable display color. It is for UI grouping only.
func RoomColor(roomID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return roomPalette[h.Sum32()%uint32(len(roomPalette))]
}

// DateKey formats a clinic day the way queue and appointment rows store it
func DateKey(day time.Time) string {
	return day.Format(time.DateOnly)
}
