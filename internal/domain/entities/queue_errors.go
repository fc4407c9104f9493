package entities

import (
	"fmt"

	apperrors "github.com/zatekoja/clinicqueue/pkg/errors"
)

// Queue error codes
const (
	CodeQueueEntryNotFound = "QUEUE_ENTRY_NOT_FOUND"
	CodeAlreadyCalled      = "ALREADY_CALLED"
	CodeAlreadyCancelled   = "ALREADY_CANCELLED"
	CodeAlreadyDone        = "ALREADY_DONE"
	CodeRoomOccupied       = "ROOM_OCCUPIED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeQueueEmpty         = "QUEUE_EMPTY"
)

// NewQueueEntryNotFoundError reports an unknown queue id
func NewQueueEntryNotFoundError(queueID string) *apperrors.AppError {
	err := apperrors.NewNotFoundError(fmt.Sprintf("queue entry %s not found", queueID))
	err.Code = CodeQueueEntryNotFound
	return err
}

// NewQueueEmptyError reports that a room has nobody waiting
func NewQueueEmptyError(roomID, date string) *apperrors.AppError {
	err := apperrors.NewNotFoundError(fmt.Sprintf("no waiting patients in room %s on %s", roomID, date))
	err.Code = CodeQueueEmpty
	return err
}

// NewAlreadyCalledError reports that the entry is already in consultation
func NewAlreadyCalledError(entry *QueueEntry) *apperrors.AppError {
	return apperrors.NewAlreadySettledError(CodeAlreadyCalled,
		fmt.Sprintf("%s has already been called into room %s", entry.PatientName, entry.RoomID))
}

// NewAlreadyCancelledError reports that the entry was already cancelled
func NewAlreadyCancelledError(entry *QueueEntry) *apperrors.AppError {
	return apperrors.NewAlreadySettledError(CodeAlreadyCancelled,
		fmt.Sprintf("queue entry for %s is already cancelled", entry.PatientName))
}

// NewAlreadyDoneError reports that the consultation already finished
func NewAlreadyDoneError(entry *QueueEntry) *apperrors.AppError {
	return apperrors.NewAlreadySettledError(CodeAlreadyDone,
		fmt.Sprintf("consultation for %s is already done", entry.PatientName))
}

// NewRoomOccupiedError reports the entry that keeps roomID busy
func NewRoomOccupiedError(roomID string, blocking *QueueEntry) *apperrors.AppError {
	msg := fmt.Sprintf("room %s is occupied", roomID)
	if blocking != nil {
		msg = fmt.Sprintf("room %s is occupied by %s", roomID, blocking.PatientName)
	}
	return apperrors.NewResourceBusyError(CodeRoomOccupied, msg)
}

// NewInvalidTransitionError reports an action that is not allowed from the entry's status
func NewInvalidTransitionError(entry *QueueEntry, action QueueAction) *apperrors.AppError {
	return apperrors.NewConflictError(CodeInvalidTransition,
		fmt.Sprintf("cannot %s queue entry %s while %s", action, entry.ID, entry.Status))
}

// SettledErrorFor returns the already-settled error matching the entry's
// current status, or nil when the entry is still waiting.
func SettledErrorFor(entry *QueueEntry) *apperrors.AppError {
	switch entry.Status {
	case QueueStatusInConsultation:
		return NewAlreadyCalledError(entry)
	case QueueStatusDone:
		return NewAlreadyDoneError(entry)
	case QueueStatusCancelled:
		return NewAlreadyCancelledError(entry)
	}
	return nil
}
