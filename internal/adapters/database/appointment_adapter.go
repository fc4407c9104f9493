package database

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/clinicqueue/pkg/errors"
)

// AppointmentAdapter implements the AppointmentRepository interface
type AppointmentAdapter struct {
	client  *postgres.Client
	db      *goqu.Database
	sqlxDB  *sqlx.DB
	metrics *observability.Metrics
}

// NewAppointmentAdapter creates a new appointment adapter. metrics may be nil.
func NewAppointmentAdapter(client *postgres.Client, metrics *observability.Metrics) repositories.AppointmentRepository {
	return &AppointmentAdapter{
		client:  client,
		db:      goqu.New("postgres", client.DB()),
		sqlxDB:  sqlx.NewDb(client.DB(), "postgres"),
		metrics: metrics,
	}
}

type slotCountRow struct {
	Time  string `db:"slot_time"`
	Count int    `db:"booked"`
}

// CountBySlots counts non-cancelled appointments per time slot in a single
// grouped query, however many slots are requested.
func (a *AppointmentAdapter) CountBySlots(ctx context.Context, q repositories.SlotCountQuery) (map[string]int, error) {
	start := time.Now()
	defer func() { observability.RecordDBMetric(ctx, a.metrics, "appointments.count_by_slots", time.Since(start)) }()

	where := goqu.Ex{
		"appointment_date": q.Date,
		"status":           goqu.Op{"neq": string(entities.AppointmentStatusCancelled)},
	}
	if len(q.Times) > 0 {
		where["appointment_time"] = q.Times
	}
	if q.RoomID != nil {
		where["room_id"] = *q.RoomID
	}
	if q.StaffID != nil {
		where["staff_id"] = *q.StaffID
	}

	query, args, err := a.db.From("appointments").
		Select(
			goqu.C("appointment_time").As("slot_time"),
			goqu.COUNT("*").As("booked"),
		).
		Where(where).
		GroupBy("appointment_time").
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build slot count query", err)
	}

	var rows []slotCountRow
	if err := a.sqlxDB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewExternalError("failed to count appointments", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Time] = row.Count
	}
	return counts, nil
}

// Create stores an appointment
func (a *AppointmentAdapter) Create(ctx context.Context, appointment *entities.Appointment) error {
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = time.Now()
	}

	record := goqu.Record{
		"id":               appointment.ID,
		"patient_id":       appointment.PatientID,
		"appointment_date": appointment.Date,
		"appointment_time": appointment.Time,
		"room_id":          appointment.RoomID,
		"staff_id":         appointment.StaffID,
		"status":           string(appointment.Status),
		"created_at":       appointment.CreatedAt,
	}

	query, args, err := a.db.Insert("appointments").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create appointment", err)
	}
	return nil
}
