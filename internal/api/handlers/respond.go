package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/clinicqueue/pkg/errors"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string               `json:"error"`
	Code  string               `json:"code,omitempty"`
	Field string               `json:"field,omitempty"`
	Entry *entities.QueueEntry `json:"entry,omitempty"`
}

// entryResponse carries an entry plus an optional notice. A notice means the
// requested outcome had already happened and nothing was changed.
type entryResponse struct {
	Entry  *entities.QueueEntry `json:"entry"`
	Notice string               `json:"notice,omitempty"`
	Code   string               `json:"code,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("Failed to write response body")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, errorResponse{Error: message})
}

// respondWithEntryResult writes the outcome of a queue transition. entry is
// what the service returned alongside err: the current entry, or the entry
// holding the room on ROOM_OCCUPIED.
func respondWithEntryResult(w http.ResponseWriter, r *http.Request, successStatus int, entry *entities.QueueEntry, err error) {
	if err == nil {
		respondWithJSON(w, successStatus, entryResponse{Entry: entry})
		return
	}

	appErr, ok := apperrors.As(err)
	if ok && appErr.Type == apperrors.ErrorTypeAlreadySettled {
		respondWithJSON(w, http.StatusOK, entryResponse{Entry: entry, Notice: appErr.Message, Code: appErr.Code})
		return
	}
	if ok && appErr.Type == apperrors.ErrorTypeResourceBusy {
		respondWithJSON(w, http.StatusConflict, errorResponse{Error: appErr.Message, Code: appErr.Code, Entry: entry})
		return
	}
	respondWithAppError(w, r, err)
}

// respondWithAppError maps an error to its HTTP status
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewInternalError("unexpected error", err)
	}

	body := errorResponse{Error: appErr.Message, Code: appErr.Code, Field: appErr.Field}
	status := http.StatusInternalServerError

	switch appErr.Type {
	case apperrors.ErrorTypeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrorTypeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrorTypeConflict, apperrors.ErrorTypeResourceBusy:
		status = http.StatusConflict
	case apperrors.ErrorTypeAlreadySettled:
		status = http.StatusOK
	case apperrors.ErrorTypeExternal:
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		body = errorResponse{Error: "internal server error"}
		if status == http.StatusBadGateway {
			body.Error = appErr.Message
		}
	}

	respondWithJSON(w, status, body)
}
