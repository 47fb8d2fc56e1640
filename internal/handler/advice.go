package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keydesk/keydesk/internal/advisory"
	"github.com/keydesk/keydesk/internal/directory"
	"github.com/keydesk/keydesk/internal/handler/dto"
	"github.com/keydesk/keydesk/internal/middleware"
)

// AdviceHandler serves security recommendations for keys being configured.
type AdviceHandler struct {
	advisor     *advisory.Service
	catalog     directory.Catalog
	environment string
	logger      *slog.Logger
}

// NewAdviceHandler creates a new AdviceHandler. environment is used when a
// request does not name one.
func NewAdviceHandler(advisor *advisory.Service, catalog directory.Catalog, environment string, logger *slog.Logger) *AdviceHandler {
	return &AdviceHandler{advisor: advisor, catalog: catalog, environment: environment, logger: logger}
}

// Advise handles POST /api/v1/spaces/{spaceID}/advice
//
// The answer never fails: provider errors and timeouts yield a fallback
// recommendation. Key creation never waits on this endpoint.
func (h *AdviceHandler) Advise(w http.ResponseWriter, r *http.Request) {
	if _, err := h.catalog.GetSpace(r.Context(), chi.URLParam(r, "spaceID")); err != nil {
		if errors.Is(err, directory.ErrSpaceNotFound) {
			writeError(w, http.StatusNotFound, "SPACE_NOT_FOUND", "Space not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	var req dto.AdviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	for _, sc := range req.Scopes {
		if !sc.IsValid() {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid scope "+string(sc))
			return
		}
	}

	env := strings.TrimSpace(req.Environment)
	if env == "" {
		env = h.environment
	}

	answer := h.advisor.Request(r.Context(), advisory.AdviceRequest{
		Name:        strings.TrimSpace(req.Name),
		Scopes:      req.Scopes,
		Environment: env,
	})

	select {
	case text := <-answer:
		writeJSON(w, http.StatusOK, dto.AdviceResponse{Advice: text, Provider: h.advisor.Provider()})
	case <-r.Context().Done():
		h.logger.Debug("advice request abandoned by client",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
	}
}
