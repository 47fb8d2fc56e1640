package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keydesk/keydesk/internal/directory"
	"github.com/keydesk/keydesk/internal/handler/dto"
	"github.com/keydesk/keydesk/internal/model"
)

// SpaceHandler serves the space and application directory.
type SpaceHandler struct {
	catalog directory.Catalog
	logger  *slog.Logger
}

// NewSpaceHandler creates a new SpaceHandler.
func NewSpaceHandler(catalog directory.Catalog, logger *slog.Logger) *SpaceHandler {
	return &SpaceHandler{catalog: catalog, logger: logger}
}

// List handles GET /api/v1/spaces?q=
func (h *SpaceHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		spaces []model.Space
		err    error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		spaces, err = h.catalog.SearchSpaces(r.Context(), q)
	} else {
		spaces, err = h.catalog.ListSpaces(r.Context())
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": dto.ToSpaceResponses(spaces)})
}

// Get handles GET /api/v1/spaces/{spaceID}
func (h *SpaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	space, err := h.catalog.GetSpace(r.Context(), chi.URLParam(r, "spaceID"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SpaceResponse{ID: space.ID, Name: space.Name})
}

// ListApplications handles GET /api/v1/spaces/{spaceID}/applications
func (h *SpaceHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.catalog.ListApplications(r.Context(), chi.URLParam(r, "spaceID"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": dto.ToApplicationResponses(apps)})
}

func (h *SpaceHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, directory.ErrSpaceNotFound) {
		writeError(w, http.StatusNotFound, "SPACE_NOT_FOUND", "Space not found")
		return
	}
	h.logger.Error("catalog lookup failed", slog.String("error", err.Error()), slog.String("path", r.URL.Path))
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
}
