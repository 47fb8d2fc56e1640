package handler

import (
	"net/http"

	"github.com/keydesk/keydesk/internal/auth"
	"github.com/keydesk/keydesk/internal/handler/dto"
)

// VerifyHandler reports the key that authenticated the request.
type VerifyHandler struct{}

// NewVerifyHandler creates a new VerifyHandler.
func NewVerifyHandler() *VerifyHandler {
	return &VerifyHandler{}
}

// Verify handles POST /api/v1/keys/verify and its scoped variants.
// APIKeyAuth has already verified the key and recorded its use.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	key := auth.VerifiedKeyFromContext(r.Context())
	if key == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
		return
	}

	writeJSON(w, http.StatusOK, dto.ToVerifyResponse(key))
}
