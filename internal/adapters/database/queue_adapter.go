package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/clinicqueue/pkg/errors"
)

const queueTable = "queue_entries"

// uniqueViolation is the SQLSTATE Postgres reports for a unique index conflict
const uniqueViolation = "23505"

// queueColumns is the projection shared by every queue read. queue_date is
// rendered as text so it scans straight into the entry's day key.
var queueColumns = []interface{}{
	"id", "patient_id", "patient_name", "room_id", "doctor_id", "doctor_name",
	"appointment_id",
	goqu.L("to_char(queue_date, 'YYYY-MM-DD')").As("queue_date"),
	"queue_time", "queue_position", "status", "version", "created_at", "updated_at",
}

// QueueAdapter implements the QueueRepository interface on PostgreSQL.
// Writes run inside a transaction holding a per-room advisory lock.
type QueueAdapter struct {
	client  *postgres.Client
	db      *goqu.Database
	metrics *observability.Metrics
	now     func() time.Time
}

// NewQueueAdapter creates a new queue adapter. metrics may be nil.
func NewQueueAdapter(client *postgres.Client, metrics *observability.Metrics) repositories.QueueRepository {
	return &QueueAdapter{
		client:  client,
		db:      goqu.New("postgres", client.DB()),
		metrics: metrics,
		now:     time.Now,
	}
}

// List retrieves the entries of one clinic day, optionally one room
func (a *QueueAdapter) List(ctx context.Context, filter repositories.QueueFilter) ([]*entities.QueueEntry, error) {
	start := time.Now()
	defer func() { observability.RecordDBMetric(ctx, a.metrics, "queue.list", time.Since(start)) }()

	where := goqu.Ex{"queue_date": filter.Date}
	if filter.RoomID != nil {
		where["room_id"] = *filter.RoomID
	}

	query, args, err := a.db.From(queueTable).
		Select(queueColumns...).
		Where(where).
		Order(goqu.I("room_id").Asc(), goqu.I("queue_position").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build queue list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list queue entries", err)
	}
	defer rows.Close()

	return scanQueueEntries(rows)
}

// GetByID retrieves a queue entry by ID
func (a *QueueAdapter) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	start := time.Now()
	defer func() { observability.RecordDBMetric(ctx, a.metrics, "queue.get", time.Since(start)) }()

	return getQueueEntry(ctx, a.client.DB(), id)
}

// WithRoomLock runs fn in a transaction that holds the advisory lock of
// (roomID, date). Concurrent callers for the same room queue up behind it.
func (a *QueueAdapter) WithRoomLock(ctx context.Context, roomID, date string, fn func(ctx context.Context, tx repositories.QueueTx) error) error {
	start := time.Now()
	defer func() { observability.RecordDBMetric(ctx, a.metrics, "queue.locked_tx", time.Since(start)) }()

	err := a.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, roomLockKey(roomID, date)); err != nil {
			return apperrors.NewInternalError("failed to lock room queue", err)
		}
		return fn(ctx, &queueTx{tx: tx, roomID: roomID, date: date, now: a.now})
	})

	var txErr *postgres.TxError
	if errors.As(err, &txErr) {
		return apperrors.NewInternalError("queue transaction failed", txErr)
	}
	return err
}

func roomLockKey(roomID, date string) string {
	return fmt.Sprintf("queue:%s:%s", date, roomID)
}

// queueTx is the QueueTx handed to WithRoomLock callbacks
type queueTx struct {
	tx     *sql.Tx
	roomID string
	date   string
	now    func() time.Time
}

func (q *queueTx) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	return getQueueEntry(ctx, q.tx, id)
}

func (q *queueTx) ListRoom(ctx context.Context) ([]*entities.QueueEntry, error) {
	query, args, err := goqu.Dialect("postgres").From(queueTable).
		Select(queueColumns...).
		Where(goqu.Ex{"queue_date": q.date, "room_id": q.roomID}).
		Order(goqu.I("queue_position").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build room queue query", err)
	}

	rows, err := q.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list room queue", err)
	}
	defer rows.Close()

	return scanQueueEntries(rows)
}

func (q *queueTx) Create(ctx context.Context, entry *entities.QueueEntry) error {
	if entry.RoomID != q.roomID || entry.QueueDate != q.date {
		return apperrors.NewInternalError("queue entry outside the locked room", nil)
	}

	now := q.now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.Version == 0 {
		entry.Version = 1
	}

	var appointmentID interface{}
	if entry.AppointmentID != nil {
		appointmentID = *entry.AppointmentID
	}

	record := goqu.Record{
		"id":             entry.ID,
		"patient_id":     entry.PatientID,
		"patient_name":   entry.PatientName,
		"room_id":        entry.RoomID,
		"doctor_id":      entry.DoctorID,
		"doctor_name":    entry.DoctorName,
		"appointment_id": appointmentID,
		"queue_date":     entry.QueueDate,
		"queue_time":     entry.QueueTime,
		"queue_position": entry.QueuePosition,
		"status":         string(entry.Status),
		"version":        entry.Version,
		"created_at":     entry.CreatedAt,
		"updated_at":     entry.UpdatedAt,
	}

	query, args, err := goqu.Dialect("postgres").Insert(queueTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := q.tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return repositories.ErrStaleEntry
		}
		return apperrors.NewInternalError("failed to create queue entry", err)
	}
	return nil
}

func (q *queueTx) UpdateStatus(ctx context.Context, id string, from, to entities.QueueStatus) (*entities.QueueEntry, error) {
	query, args, err := goqu.Dialect("postgres").Update(queueTable).
		Set(goqu.Record{
			"status":     string(to),
			"version":    goqu.L("version + 1"),
			"updated_at": q.now(),
		}).
		Where(goqu.Ex{"id": id, "status": string(from)}).
		Returning(queueColumns...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build status update", err)
	}

	return q.updateReturning(ctx, query, args)
}

func (q *queueTx) UpdatePosition(ctx context.Context, id string, position int) (*entities.QueueEntry, error) {
	query, args, err := goqu.Dialect("postgres").Update(queueTable).
		Set(goqu.Record{
			"queue_position": position,
			"version":        goqu.L("version + 1"),
			"updated_at":     q.now(),
		}).
		Where(goqu.Ex{"id": id, "status": string(entities.QueueStatusWaiting)}).
		Returning(queueColumns...).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build position update", err)
	}

	return q.updateReturning(ctx, query, args)
}

// updateReturning runs a guarded UPDATE ... RETURNING. No returned row means
// the guard no longer held.
func (q *queueTx) updateReturning(ctx context.Context, query string, args []interface{}) (*entities.QueueEntry, error) {
	entry, err := scanQueueEntry(q.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		return nil, repositories.ErrStaleEntry
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to update queue entry", err)
	}
	return entry, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getQueueEntry(ctx context.Context, db queryRower, id string) (*entities.QueueEntry, error) {
	query, args, err := goqu.Dialect("postgres").From(queueTable).
		Select(queueColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	entry, err := scanQueueEntry(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entities.NewQueueEntryNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get queue entry", err)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueEntry(row rowScanner) (*entities.QueueEntry, error) {
	entry := &entities.QueueEntry{}
	var appointmentID sql.NullString
	var status string

	if err := row.Scan(
		&entry.ID,
		&entry.PatientID,
		&entry.PatientName,
		&entry.RoomID,
		&entry.DoctorID,
		&entry.DoctorName,
		&appointmentID,
		&entry.QueueDate,
		&entry.QueueTime,
		&entry.QueuePosition,
		&status,
		&entry.Version,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := entities.ParseQueueStatus(status)
	if err != nil {
		return nil, err
	}
	entry.Status = parsed
	if appointmentID.Valid {
		entry.AppointmentID = &appointmentID.String
	}
	return entry, nil
}

func scanQueueEntries(rows *sql.Rows) ([]*entities.QueueEntry, error) {
	var entries []*entities.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan queue entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to read queue entries", err)
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
