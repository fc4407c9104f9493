package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/clinicqueue/internal/application/services"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
)

// CapacityService defines the slot availability queries
type CapacityService interface {
	CheckAvailability(ctx context.Context, q services.SlotQuery) (entities.SlotAvailability, error)
	CheckAvailabilityBatch(ctx context.Context, times []string, forDate string, roomID, staffID *string) (map[string]entities.SlotAvailability, error)
	FindNearestAvailableSlot(ctx context.Context, q services.SlotQuery) (string, error)
}

// AvailabilityHandler handles appointment slot availability requests
type AvailabilityHandler struct {
	service CapacityService
	now     func() time.Time
}

// NewAvailabilityHandler creates a new availability handler
func NewAvailabilityHandler(service CapacityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, now: time.Now}
}

// CheckAvailability handles GET /api/availability?time=&date=&room_id=&staff_id=
func (h *AvailabilityHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := h.service.CheckAvailability(r.Context(), h.slotQuery(r))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, availability)
}

// CheckAvailabilityBatch handles GET /api/availability/batch?times=a,b&date=
// Without times the whole day grid is returned.
func (h *AvailabilityHandler) CheckAvailabilityBatch(w http.ResponseWriter, r *http.Request) {
	q := h.slotQuery(r)

	var times []string
	for _, t := range strings.Split(r.URL.Query().Get("times"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			times = append(times, t)
		}
	}

	slots, err := h.service.CheckAvailabilityBatch(r.Context(), times, q.Date, q.RoomID, q.StaffID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":  q.Date,
		"slots": slots,
	})
}

// FindNearestAvailableSlot handles GET /api/availability/nearest?time=&date=
func (h *AvailabilityHandler) FindNearestAvailableSlot(w http.ResponseWriter, r *http.Request) {
	q := h.slotQuery(r)

	slot, err := h.service.FindNearestAvailableSlot(r.Context(), q)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"requested": q.Time,
		"date":      q.Date,
		"slot":      slot,
	})
}

func (h *AvailabilityHandler) slotQuery(r *http.Request) services.SlotQuery {
	query := r.URL.Query()
	q := services.SlotQuery{
		Time: query.Get("time"),
		Date: query.Get("date"),
	}
	if q.Date == "" {
		q.Date = entities.DateKey(h.now())
	}
	if room := query.Get("room_id"); room != "" {
		q.RoomID = &room
	}
	if staff := query.Get("staff_id"); staff != "" {
		q.StaffID = &staff
	}
	return q
}
