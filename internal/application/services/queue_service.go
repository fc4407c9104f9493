package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/clinicqueue/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// QueueServiceConfig holds the policy switches of the queue
type QueueServiceConfig struct {
	AllowCancelInConsultation bool
}

// QueueService owns queue entry lifecycle. Every transition runs under the
// room lock of the entry's (room, day), re-reads the entry there, and
// publishes an event only after the write has committed.
//
// When a transition is refused the current entry is returned alongside the
// error so callers can reconcile: on ROOM_OCCUPIED it is the entry that holds
// the room, otherwise it is the requested entry as currently stored.
type QueueService struct {
	repo     repositories.QueueRepository
	guard    *OccupancyGuard
	notifier Notifier
	metrics  *observability.Metrics
	cfg      QueueServiceConfig
	newID    func() string
}

// NewQueueService creates a new queue service. notifier and metrics may be nil.
func NewQueueService(repo repositories.QueueRepository, guard *OccupancyGuard, notifier Notifier, metrics *observability.Metrics, cfg QueueServiceConfig) *QueueService {
	if guard == nil {
		guard = NewOccupancyGuard(repo)
	}
	return &QueueService{
		repo:     repo,
		guard:    guard,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
		newID:    uuid.NewString,
	}
}

// ReceiveRequest describes a patient arriving at reception
type ReceiveRequest struct {
	PatientID     string  `json:"patient_id"`
	PatientName   string  `json:"patient_name"`
	RoomID        string  `json:"room_id"`
	DoctorID      string  `json:"doctor_id"`
	DoctorName    string  `json:"doctor_name"`
	QueueDate     string  `json:"queue_date"`
	QueueTime     string  `json:"queue_time"`
	AppointmentID *string `json:"appointment_id,omitempty"`
}

func (r ReceiveRequest) validate() (ReceiveRequest, error) {
	for _, f := range []struct{ name, value string }{
		{"patient_id", r.PatientID},
		{"patient_name", r.PatientName},
		{"room_id", r.RoomID},
		{"doctor_id", r.DoctorID},
	} {
		if err := requireField(f.name, f.value); err != nil {
			return r, err
		}
	}

	day, err := entities.ParseClinicDate(r.QueueDate)
	if err != nil {
		return r, apperrors.NewFieldValidationError("queue_date", err.Error())
	}
	r.QueueDate = entities.DateKey(day)

	if r.QueueTime, err = normalizeSlot("queue_time", r.QueueTime); err != nil {
		return r, err
	}
	return r, nil
}

// ListQueue returns the entries of forDate, optionally only roomID, in
// serving order and annotated with their room display color.
func (s *QueueService) ListQueue(ctx context.Context, forDate string, roomID *string) ([]*entities.QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.ListQueue")
	defer span.End()

	date, err := normalizeDate(forDate)
	if err != nil {
		return nil, err
	}
	if roomID != nil && *roomID == "" {
		roomID = nil
	}

	entries, err := s.repo.List(ctx, repositories.QueueFilter{Date: date, RoomID: roomID})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	ordered := entities.OrderQueue(entries)
	for _, e := range ordered {
		e.DisplayColor = entities.RoomColor(e.RoomID)
	}
	return ordered, nil
}

// GetEntry returns one queue entry
func (s *QueueService) GetEntry(ctx context.Context, queueID string) (*entities.QueueEntry, error) {
	if err := requireField("queue_id", queueID); err != nil {
		return nil, err
	}
	entry, err := s.repo.GetByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	entry.DisplayColor = entities.RoomColor(entry.RoomID)
	return entry, nil
}

// ReceivePatient appends a Waiting entry at the back of the room's queue.
// Receiving the same appointment twice returns the existing entry.
func (s *QueueService) ReceivePatient(ctx context.Context, req ReceiveRequest) (*entities.QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.ReceivePatient")
	defer span.End()

	req, err := req.validate()
	if err != nil {
		return nil, err
	}

	var created *entities.QueueEntry
	var existing bool
	err = s.repo.WithRoomLock(ctx, req.RoomID, req.QueueDate, func(ctx context.Context, tx repositories.QueueTx) error {
		room, err := tx.ListRoom(ctx)
		if err != nil {
			return err
		}

		if req.AppointmentID != nil {
			for _, e := range room {
				if e.AppointmentID != nil && *e.AppointmentID == *req.AppointmentID {
					created, existing = e, true
					return nil
				}
			}
		}

		entry := &entities.QueueEntry{
			ID:            s.newID(),
			PatientID:     req.PatientID,
			PatientName:   req.PatientName,
			RoomID:        req.RoomID,
			DoctorID:      req.DoctorID,
			DoctorName:    req.DoctorName,
			AppointmentID: req.AppointmentID,
			QueueDate:     req.QueueDate,
			QueueTime:     req.QueueTime,
			QueuePosition: entities.NextPosition(room, req.RoomID),
			Status:        entities.QueueStatusWaiting,
		}
		if err := tx.Create(ctx, entry); err != nil {
			return err
		}
		created = entry
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		s.recordOutcome(ctx, entities.QueueActionReceive, err)
		return nil, s.internalize(err, "failed to receive patient")
	}

	created.DisplayColor = entities.RoomColor(created.RoomID)
	if existing {
		s.recordResult(ctx, entities.QueueActionReceive, "noop")
		return created, nil
	}

	s.recordResult(ctx, entities.QueueActionReceive, "ok")
	s.publish(ctx, created, entities.QueueEventUpdated)
	observability.LoggerFromContext(ctx).Info().
		Str("queue_id", created.ID).
		Str("room_id", created.RoomID).
		Int("queue_position", created.QueuePosition).
		Msg("Patient received into queue")
	return created, nil
}

// CallPatient moves a Waiting entry into consultation
func (s *QueueService) CallPatient(ctx context.Context, queueID string) (*entities.QueueEntry, error) {
	return s.transition(ctx, queueID, entities.QueueActionCall)
}

// CompleteConsultation moves an entry from consultation to Done
func (s *QueueService) CompleteConsultation(ctx context.Context, queueID string) (*entities.QueueEntry, error) {
	return s.transition(ctx, queueID, entities.QueueActionComplete)
}

// Cancel removes an entry from the active queue
func (s *QueueService) Cancel(ctx context.Context, queueID string) (*entities.QueueEntry, error) {
	return s.transition(ctx, queueID, entities.QueueActionCancel)
}

// Prioritize moves a Waiting entry to the front of its room's queue
func (s *QueueService) Prioritize(ctx context.Context, queueID string) (*entities.QueueEntry, error) {
	return s.transition(ctx, queueID, entities.QueueActionPrioritize)
}

// IsRoomOccupied reports whether roomID is serving a patient on forDate
func (s *QueueService) IsRoomOccupied(ctx context.Context, roomID, forDate string) (bool, error) {
	return s.guard.IsRoomOccupied(ctx, roomID, forDate)
}

// RoomOccupant returns the entry currently in consultation in roomID, or nil
func (s *QueueService) RoomOccupant(ctx context.Context, roomID, forDate string) (*entities.QueueEntry, error) {
	return s.guard.Occupant(ctx, roomID, forDate)
}

// CallNext calls the first Waiting entry of roomID in serving order
func (s *QueueService) CallNext(ctx context.Context, roomID, forDate string) (*entities.QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService.CallNext")
	defer span.End()
	span.SetAttributes(attribute.String("room_id", roomID))

	if err := requireField("room_id", roomID); err != nil {
		return nil, err
	}
	date, err := normalizeDate(forDate)
	if err != nil {
		return nil, err
	}

	var result *entities.QueueEntry
	err = s.repo.WithRoomLock(ctx, roomID, date, func(ctx context.Context, tx repositories.QueueTx) error {
		if busy, err := s.guard.CheckRoomFree(ctx, tx, roomID, ""); err != nil {
			result = busy
			return err
		}

		room, err := tx.ListRoom(ctx)
		if err != nil {
			return err
		}
		for _, e := range entities.OrderQueue(room) {
			if e.Status != entities.QueueStatusWaiting {
				continue
			}
			result, err = tx.UpdateStatus(ctx, e.ID, entities.QueueStatusWaiting, entities.QueueStatusInConsultation)
			return err
		}
		return entities.NewQueueEmptyError(roomID, date)
	})
	if err != nil {
		observability.RecordError(span, err)
		s.recordOutcome(ctx, entities.QueueActionCall, err)
		if result != nil {
			result.DisplayColor = entities.RoomColor(result.RoomID)
		}
		return result, s.internalize(err, "failed to call next patient")
	}

	result.DisplayColor = entities.RoomColor(result.RoomID)
	s.recordResult(ctx, entities.QueueActionCall, "ok")
	s.publish(ctx, result, entities.QueueEventUpdated)
	return result, nil
}

// transition applies action to the entry under its room lock
func (s *QueueService) transition(ctx context.Context, queueID string, action entities.QueueAction) (*entities.QueueEntry, error) {
	ctx, span := observability.StartSpan(ctx, "QueueService."+string(action))
	defer span.End()
	span.SetAttributes(attribute.String("queue_id", queueID))

	if err := requireField("queue_id", queueID); err != nil {
		return nil, err
	}

	located, err := s.repo.GetByID(ctx, queueID)
	if err != nil {
		s.recordOutcome(ctx, action, err)
		return nil, err
	}

	var result *entities.QueueEntry
	changed := false
	err = s.repo.WithRoomLock(ctx, located.RoomID, located.QueueDate, func(ctx context.Context, tx repositories.QueueTx) error {
		entry, err := tx.GetByID(ctx, queueID)
		if err != nil {
			return err
		}
		result = entry

		if !s.allowed(action, entry.Status) {
			return s.rejection(entry, action)
		}

		switch action {
		case entities.QueueActionCall:
			if busy, err := s.guard.CheckRoomFree(ctx, tx, entry.RoomID, entry.ID); err != nil {
				result = busy
				return err
			}
		case entities.QueueActionPrioritize:
			room, err := tx.ListRoom(ctx)
			if err != nil {
				return err
			}
			front, ok := entities.FrontPosition(room, entry.RoomID, entry.ID)
			if !ok || entry.QueuePosition < front {
				return nil
			}
			result, err = tx.UpdatePosition(ctx, entry.ID, front-1)
			if err != nil {
				return err
			}
			changed = true
			return nil
		}

		target, _ := entities.TargetStatus(action)
		result, err = tx.UpdateStatus(ctx, entry.ID, entry.Status, target)
		if err != nil {
			return err
		}
		changed = true
		return nil
	})

	if errors.Is(err, repositories.ErrStaleEntry) {
		result, err = s.reconcile(ctx, queueID, action)
	}
	if result != nil {
		result.DisplayColor = entities.RoomColor(result.RoomID)
	}
	if err != nil {
		observability.RecordError(span, err)
		s.recordOutcome(ctx, action, err)
		return result, s.internalize(err, "failed to "+string(action)+" queue entry")
	}

	if !changed {
		s.recordResult(ctx, action, "noop")
		return result, nil
	}

	s.recordResult(ctx, action, "ok")
	eventAction := entities.QueueEventUpdated
	if action == entities.QueueActionComplete {
		eventAction = entities.QueueEventCompleted
	}
	s.publish(ctx, result, eventAction)

	observability.LoggerFromContext(ctx).Info().
		Str("queue_id", result.ID).
		Str("room_id", result.RoomID).
		Str("action", string(action)).
		Str("status", string(result.Status)).
		Msg("Queue entry updated")
	return result, nil
}

func (s *QueueService) allowed(action entities.QueueAction, from entities.QueueStatus) bool {
	if !entities.ValidTransition(action, from) {
		return false
	}
	if action == entities.QueueActionCancel && from == entities.QueueStatusInConsultation {
		return s.cfg.AllowCancelInConsultation
	}
	return true
}

// rejection picks the error for an action refused from entry's status.
// Outcomes another actor already produced are reported as settled.
func (s *QueueService) rejection(entry *entities.QueueEntry, action entities.QueueAction) error {
	switch {
	case action == entities.QueueActionComplete && entry.Status == entities.QueueStatusWaiting,
		action == entities.QueueActionCancel && entry.Status == entities.QueueStatusInConsultation:
		return entities.NewInvalidTransitionError(entry, action)
	}
	if settled := entities.SettledErrorFor(entry); settled != nil {
		return settled
	}
	return entities.NewInvalidTransitionError(entry, action)
}

// reconcile explains a guarded write that lost a race outside the room lock,
// e.g. against the unique in-consultation index.
func (s *QueueService) reconcile(ctx context.Context, queueID string, action entities.QueueAction) (*entities.QueueEntry, error) {
	fresh, err := s.repo.GetByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if action == entities.QueueActionCall && fresh.Status == entities.QueueStatusWaiting {
		busy, _ := s.guard.Occupant(ctx, fresh.RoomID, fresh.QueueDate)
		if busy != nil {
			return busy, entities.NewRoomOccupiedError(fresh.RoomID, busy)
		}
		return fresh, entities.NewRoomOccupiedError(fresh.RoomID, nil)
	}
	return fresh, s.rejection(fresh, action)
}

func (s *QueueService) publish(ctx context.Context, entry *entities.QueueEntry, action entities.QueueEventAction) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, entities.NewQueueStatusEvent(entry, action))
}

// internalize keeps typed errors and wraps anything else as INTERNAL
func (s *QueueService) internalize(err error, msg string) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.NewInternalError(msg, err)
}

func (s *QueueService) recordOutcome(ctx context.Context, action entities.QueueAction, err error) {
	result := apperrors.CodeOf(err)
	if result == "" {
		result = string(apperrors.TypeOf(err))
	}
	s.recordResult(ctx, action, result)
}

func (s *QueueService) recordResult(ctx context.Context, action entities.QueueAction, result string) {
	observability.RecordQueueTransition(ctx, s.metrics, string(action), result)
}
