package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zatekoja/clinicqueue/internal/application/services"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
)

// QueueService defines the queue operations exposed over HTTP
type QueueService interface {
	ListQueue(ctx context.Context, forDate string, roomID *string) ([]*entities.QueueEntry, error)
	GetEntry(ctx context.Context, queueID string) (*entities.QueueEntry, error)
	ReceivePatient(ctx context.Context, req services.ReceiveRequest) (*entities.QueueEntry, error)
	CallPatient(ctx context.Context, queueID string) (*entities.QueueEntry, error)
	CompleteConsultation(ctx context.Context, queueID string) (*entities.QueueEntry, error)
	Cancel(ctx context.Context, queueID string) (*entities.QueueEntry, error)
	Prioritize(ctx context.Context, queueID string) (*entities.QueueEntry, error)
	CallNext(ctx context.Context, roomID, forDate string) (*entities.QueueEntry, error)
	RoomOccupant(ctx context.Context, roomID, forDate string) (*entities.QueueEntry, error)
}

// QueueHandler handles receptionist and doctor queue requests
type QueueHandler struct {
	service QueueService
	now     func() time.Time
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(service QueueService) *QueueHandler {
	return &QueueHandler{service: service, now: time.Now}
}

// ListQueue handles GET /api/queue?date=&room_id=
// date defaults to today on the server clock.
func (h *QueueHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var roomID *string
	if room := query.Get("room_id"); room != "" {
		roomID = &room
	}

	entries, err := h.service.ListQueue(r.Context(), h.dateParam(r), roomID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*entities.QueueEntry{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":    h.dateParam(r),
		"entries": entries,
		"count":   len(entries),
	})
}

// GetEntry handles GET /api/queue/{id}
func (h *QueueHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entryResponse{Entry: entry})
}

// ReceivePatient handles POST /api/queue
func (h *QueueHandler) ReceivePatient(w http.ResponseWriter, r *http.Request) {
	var req services.ReceiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	entry, err := h.service.ReceivePatient(r.Context(), req)
	respondWithEntryResult(w, r, http.StatusCreated, entry, err)
}

// CallPatient handles POST /api/queue/{id}/call
func (h *QueueHandler) CallPatient(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.CallPatient(r.Context(), r.PathValue("id"))
	respondWithEntryResult(w, r, http.StatusOK, entry, err)
}

// CompleteConsultation handles POST /api/queue/{id}/complete
func (h *QueueHandler) CompleteConsultation(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.CompleteConsultation(r.Context(), r.PathValue("id"))
	respondWithEntryResult(w, r, http.StatusOK, entry, err)
}

// Cancel handles POST /api/queue/{id}/cancel
func (h *QueueHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Cancel(r.Context(), r.PathValue("id"))
	respondWithEntryResult(w, r, http.StatusOK, entry, err)
}

// Prioritize handles POST /api/queue/{id}/prioritize
func (h *QueueHandler) Prioritize(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Prioritize(r.Context(), r.PathValue("id"))
	respondWithEntryResult(w, r, http.StatusOK, entry, err)
}

// CallNext handles POST /api/rooms/{roomId}/call-next?date=
func (h *QueueHandler) CallNext(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.CallNext(r.Context(), r.PathValue("roomId"), h.dateParam(r))
	respondWithEntryResult(w, r, http.StatusOK, entry, err)
}

// RoomOccupancy handles GET /api/rooms/{roomId}/occupancy?date=
func (h *QueueHandler) RoomOccupancy(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	occupant, err := h.service.RoomOccupant(r.Context(), roomID, h.dateParam(r))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":  roomID,
		"date":     h.dateParam(r),
		"occupied": occupant != nil,
		"occupant": occupant,
	})
}

func (h *QueueHandler) dateParam(r *http.Request) string {
	if date := r.URL.Query().Get("date"); date != "" {
		return date
	}
	return entities.DateKey(h.now())
}
