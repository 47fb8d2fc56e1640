package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keydesk/keydesk/internal/auth"
	"github.com/keydesk/keydesk/internal/directory"
	"github.com/keydesk/keydesk/internal/filter"
	"github.com/keydesk/keydesk/internal/handler/dto"
	"github.com/keydesk/keydesk/internal/middleware"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/service"
)

// KeyHandler handles API key management endpoints of a space.
type KeyHandler struct {
	svc     *service.KeyService
	catalog directory.Catalog
	logger  *slog.Logger
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(svc *service.KeyService, catalog directory.Catalog, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{svc: svc, catalog: catalog, logger: logger}
}

// List handles GET /api/v1/spaces/{spaceID}/keys
//
// Query: q, app_id (repeatable or comma separated), expiry, status, creator.
// reset=true drops every criterion except q.
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")

	spec, err := parseFilter(r, spaceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
		return
	}

	principal := auth.MustPrincipalFromContext(r.Context())
	keys, err := h.svc.List(r.Context(), principal, spec)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToKeyListResponse(keys, !spec.IsDefault(), h.svc.Now(), h.svc.Location(), h.appNames(r.Context(), spaceID)))
}

// Create handles POST /api/v1/spaces/{spaceID}/keys
// The plaintext secret is returned in this response only.
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")

	var req dto.CreateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	input := service.CreateInput{
		SpaceID:        spaceID,
		Name:           req.Name,
		AuthMode:       authMode(req.AuthMode, req.AppIDs),
		AppIDs:         req.AppIDs,
		ExpiryMode:     service.ExpiryMode(req.ExpiryMode),
		ExpiresOn:      req.ExpiresOn,
		ExpiresInDays:  req.ExpiresInDays,
		Scopes:         req.Scopes,
		Seed:           req.PrefixTag,
		IdempotencyKey: r.Header.Get(middleware.IdempotencyKeyHeader),
	}
	if req.Owner != nil {
		input.Owner = model.Principal{ID: strings.TrimSpace(req.Owner.ID), Name: strings.TrimSpace(req.Owner.Name)}
	}

	principal := auth.MustPrincipalFromContext(r.Context())
	result, err := h.svc.Create(r.Context(), principal, input)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/v1/spaces/"+spaceID+"/keys/"+result.Key.ID)
	writeJSON(w, http.StatusCreated, dto.CreateKeyResponse{
		KeyResponse: dto.ToKeyResponse(result.Key, h.svc.Now(), h.svc.Location(), h.appNames(r.Context(), spaceID)),
		Secret:      result.Secret,
		Warning:     dto.SecretWarning,
	})
}

// Get handles GET /api/v1/spaces/{spaceID}/keys/{keyID}
func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")

	key, err := h.svc.Get(r.Context(), spaceID, chi.URLParam(r, "keyID"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.writeKey(w, r, http.StatusOK, key)
}

// Update handles PATCH /api/v1/spaces/{spaceID}/keys/{keyID}
func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	principal := auth.MustPrincipalFromContext(r.Context())
	key, err := h.svc.Update(r.Context(), principal, chi.URLParam(r, "spaceID"), chi.URLParam(r, "keyID"), service.UpdateInput{
		Name:          req.Name,
		AuthMode:      authMode(req.AuthMode, req.AppIDs),
		AppIDs:        req.AppIDs,
		ExpiryMode:    service.ExpiryMode(req.ExpiryMode),
		ExpiresOn:     req.ExpiresOn,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.writeKey(w, r, http.StatusOK, key)
}

// Revoke handles POST /api/v1/spaces/{spaceID}/keys/{keyID}/revoke
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	principal := auth.MustPrincipalFromContext(r.Context())
	key, err := h.svc.Revoke(r.Context(), principal, chi.URLParam(r, "spaceID"), chi.URLParam(r, "keyID"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.writeKey(w, r, http.StatusOK, key)
}

func (h *KeyHandler) writeKey(w http.ResponseWriter, r *http.Request, status int, key *model.APIKey) {
	writeJSON(w, status, dto.ToKeyResponse(key, h.svc.Now(), h.svc.Location(), h.appNames(r.Context(), key.SpaceID)))
}

// appNames resolves application names for authorization summaries.
// A catalog failure degrades to showing ids.
func (h *KeyHandler) appNames(ctx context.Context, spaceID string) map[string]string {
	apps, err := h.catalog.ListApplications(ctx, spaceID)
	if err != nil {
		if !errors.Is(err, directory.ErrSpaceNotFound) {
			h.logger.Warn("failed to resolve application names", slog.String("space_id", spaceID), slog.String("error", err.Error()))
		}
		return nil
	}

	names := make(map[string]string, len(apps))
	for _, app := range apps {
		names[app.ID] = app.Name
	}
	return names
}

// authMode infers custom authorization when only application ids are sent.
func authMode(mode string, appIDs []string) service.AuthMode {
	if mode == "" && len(appIDs) > 0 {
		return service.AuthModeCustom
	}
	return service.AuthMode(mode)
}

// parseFilter builds a filter spec from the list query string.
func parseFilter(r *http.Request, spaceID string) (filter.Spec, error) {
	q := r.URL.Query()

	expiry, err := filter.ParseExpiry(q.Get("expiry"))
	if err != nil {
		return filter.Spec{}, err
	}
	status, err := filter.ParseStatus(q.Get("status"))
	if err != nil {
		return filter.Spec{}, err
	}
	creator, err := filter.ParseCreator(q.Get("creator"))
	if err != nil {
		return filter.Spec{}, err
	}

	var appIDs []string
	for _, v := range q["app_id"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				appIDs = append(appIDs, id)
			}
		}
	}

	spec := filter.Spec{
		SpaceID: spaceID,
		Text:    q.Get("q"),
		AppIDs:  appIDs,
		Expiry:  expiry,
		Status:  status,
		Creator: creator,
	}
	if q.Get("reset") == "true" {
		spec = spec.Reset()
	}
	return spec, nil
}
