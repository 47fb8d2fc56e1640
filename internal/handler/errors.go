package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/keydesk/keydesk/internal/middleware"
	"github.com/keydesk/keydesk/internal/service"
)

// handleServiceError maps service errors onto the HTTP error envelope.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var replay *service.ReplayError

	switch {
	case errors.As(err, &replay):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: ErrorBody{
			Code:    "IDEMPOTENT_REPLAY",
			Message: "A key was already created for this Idempotency-Key; its secret cannot be shown again",
			KeyID:   replay.KeyID,
		}})
	case errors.Is(err, service.ErrRequestInProgress):
		writeError(w, http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this Idempotency-Key is in progress")
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, service.ErrSpaceNotFound):
		writeError(w, http.StatusNotFound, "SPACE_NOT_FOUND", "Space not found")
	case errors.Is(err, service.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found")
	case errors.Is(err, service.ErrNotEditable):
		writeError(w, http.StatusConflict, "KEY_NOT_EDITABLE", "Revoked or expired keys cannot be edited")
	case errors.Is(err, service.ErrInvalidKey), errors.Is(err, service.ErrKeyInactive):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
	default:
		logger.Error("request failed",
			slog.String("error", err.Error()),
			slog.String("endpoint", r.Method+" "+r.URL.Path),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	}
}
