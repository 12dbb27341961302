package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps an AppError type onto an HTTP status. Anything
// that is not an AppError is reported as fallback with a 500.
func respondWithAppError(w http.ResponseWriter, err error, fallback string) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		respondWithError(w, http.StatusInternalServerError, fallback)
		return
	}

	switch appErr.Type {
	case apperrors.ErrorTypeNotFound:
		respondWithError(w, http.StatusNotFound, appErr.Message)
	case apperrors.ErrorTypeValidation:
		respondWithError(w, http.StatusBadRequest, appErr.Message)
	case apperrors.ErrorTypeRateLimit:
		respondWithError(w, http.StatusTooManyRequests, appErr.Message)
	case apperrors.ErrorTypeExternal, apperrors.ErrorTypeNetwork:
		respondWithError(w, http.StatusServiceUnavailable, fallback)
	default:
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}
