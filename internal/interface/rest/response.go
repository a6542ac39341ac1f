package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"sustainflow-service/internal/domain/entity"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthenticated", Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation", Message: message})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidState),
		errors.Is(err, entity.ErrInvalidTransition),
		errors.Is(err, entity.ErrTokenAlreadyUsed),
		errors.Is(err, entity.ErrInsufficientPoints):
		return http.StatusConflict
	case errors.Is(err, entity.ErrTokenExpired):
		return http.StatusGone
	case errors.Is(err, entity.ErrInvalidToken):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: entity.ErrorCode(err), Message: message})
}
