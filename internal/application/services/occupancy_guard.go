package services

import (
	"context"

	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
	apperrors "github.com/zatekoja/clinicqueue/pkg/errors"
)

// OccupancyGuard answers whether a room is serving a patient on a clinic day.
// The authoritative check for a call runs inside the room lock through
// CheckRoomFree; Occupant and IsRoomOccupied are read-only snapshots.
type OccupancyGuard struct {
	repo repositories.QueueRepository
}

// NewOccupancyGuard creates a guard reading from repo. repo should not be a
// cached decorator, since occupancy answers must reflect committed state.
func NewOccupancyGuard(repo repositories.QueueRepository) *OccupancyGuard {
	return &OccupancyGuard{repo: repo}
}

// IsRoomOccupied reports whether roomID has an entry in consultation on forDate
func (g *OccupancyGuard) IsRoomOccupied(ctx context.Context, roomID, forDate string) (bool, error) {
	occupant, err := g.Occupant(ctx, roomID, forDate)
	if err != nil {
		return false, err
	}
	return occupant != nil, nil
}

// Occupant returns the entry in consultation in roomID on forDate, or nil
func (g *OccupancyGuard) Occupant(ctx context.Context, roomID, forDate string) (*entities.QueueEntry, error) {
	if roomID == "" {
		return nil, apperrors.NewFieldValidationError("room_id", "is required")
	}
	date, err := normalizeDate(forDate)
	if err != nil {
		return nil, err
	}

	entries, err := g.repo.List(ctx, repositories.QueueFilter{Date: date, RoomID: &roomID})
	if err != nil {
		return nil, err
	}
	return entities.InConsultation(entries, roomID), nil
}

// CheckRoomFree returns ROOM_OCCUPIED when someone other than callingID is in
// consultation in the locked room. It must be called with the room lock held.
func (g *OccupancyGuard) CheckRoomFree(ctx context.Context, tx repositories.QueueTx, roomID, callingID string) (*entities.QueueEntry, error) {
	room, err := tx.ListRoom(ctx)
	if err != nil {
		return nil, err
	}
	if busy := entities.InConsultation(room, roomID); busy != nil && busy.ID != callingID {
		return busy, entities.NewRoomOccupiedError(roomID, busy)
	}
	return nil, nil
}
