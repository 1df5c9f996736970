package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/campuslink/campuslink/internal/api/middleware"
	"github.com/campuslink/campuslink/internal/chat"
	"github.com/campuslink/campuslink/internal/models"
)

// UpsertProfileRequest represents the profile provisioning request body.
// Fields left empty fall back to the token claims.
type UpsertProfileRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// UpsertProfile registers or refreshes the caller's profile (authenticated).
// Registration is idempotent: repeating the call updates the mutable fields
// and returns the same profile ID.
func (h *Handler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, chat.CodeUnauthenticated, "authentication required")
		return
	}

	var req UpsertProfileRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
			return
		}
	}

	displayName := sanitizeName(req.DisplayName)
	if displayName == "" {
		displayName = sanitizeName(identity.DisplayName)
	}
	if displayName == "" {
		h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "display_name is required")
		return
	}

	email := req.Email
	if email == "" {
		email = identity.Email
	}
	if !isValidEmail(email) {
		h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "invalid email format")
		return
	}

	profile, err := h.db.UpsertProfile(r.Context(), identity.Subject, displayName, email)
	if err != nil {
		h.logger.Error().Err(err).Str("subject", identity.Subject).Msg("profile upsert failed")
		h.Error(w, http.StatusInternalServerError, chat.CodePersistenceFailure, "failed to save profile")
		return
	}

	h.JSON(w, http.StatusOK, profile)
}

// GetProfile returns the caller's profile (authenticated).
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.callerProfile(w, r)
	if !ok {
		return
	}
	h.JSON(w, http.StatusOK, profile)
}

// callerProfile resolves the authenticated caller to a stored profile,
// writing the error response itself when resolution fails.
func (h *Handler) callerProfile(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, chat.CodeUnauthenticated, "authentication required")
		return nil, false
	}

	profile, err := h.db.GetProfileBySubject(r.Context(), identity.Subject)
	if err != nil {
		h.logger.Error().Err(err).Str("subject", identity.Subject).Msg("profile lookup failed")
		h.Error(w, http.StatusInternalServerError, chat.CodePersistenceFailure, "database error")
		return nil, false
	}
	if profile == nil {
		h.Error(w, http.StatusForbidden, chat.CodeUnauthenticated, "no profile for this subject; register first")
		return nil, false
	}

	return profile, true
}
