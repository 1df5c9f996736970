package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/campuslink/campuslink/internal/chat"
	"github.com/campuslink/campuslink/internal/models"
)

// maxRoomParticipants caps the participant set of a topic room.
const maxRoomParticipants = 64

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Kind         string   `json:"kind"` // "dm" or "topic"
	DisplayName  string   `json:"display_name,omitempty"`
	Participants []string `json:"participants"`
}

// ListRoomsResponse represents the room listing response.
type ListRoomsResponse struct {
	Rooms []models.Room `json:"rooms"`
}

// CreateRoom provisions a room with a fixed participant set (authenticated).
// The caller must be in the participant set. A DM room has exactly two
// participants and no display name; a topic room has a display name and at
// least one participant.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerProfile(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	kind := models.RoomKind(req.Kind)
	if kind != models.RoomKindDM && kind != models.RoomKindTopic {
		h.Error(w, http.StatusBadRequest, "BAD_REQUEST", `kind must be "dm" or "topic"`)
		return
	}

	if len(req.Participants) > maxRoomParticipants {
		h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "too many participants")
		return
	}

	// Parse and dedupe the participant set
	seen := make(map[uuid.UUID]bool, len(req.Participants))
	participants := make([]uuid.UUID, 0, len(req.Participants))
	for _, p := range req.Participants {
		id, err := uuid.Parse(p)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "invalid participant ID: "+p)
			return
		}
		if !seen[id] {
			seen[id] = true
			participants = append(participants, id)
		}
	}
	if !seen[caller.ID] {
		h.Error(w, http.StatusForbidden, chat.CodeNotAMember, "caller must be a participant")
		return
	}

	displayName := sanitizeName(req.DisplayName)

	switch kind {
	case models.RoomKindDM:
		if len(participants) != 2 {
			h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "dm rooms require exactly two participants")
			return
		}
		displayName = ""
	case models.RoomKindTopic:
		if displayName == "" {
			h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "topic rooms require a display_name")
			return
		}
	}

	// Verify every participant has a profile
	for _, id := range participants {
		profile, err := h.db.GetProfileByID(r.Context(), id)
		if err != nil {
			h.logger.Error().Err(err).Str("profile_id", id.String()).Msg("participant lookup failed")
			h.Error(w, http.StatusInternalServerError, chat.CodePersistenceFailure, "database error")
			return
		}
		if profile == nil {
			h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "unknown participant: "+id.String())
			return
		}
	}

	room, err := h.db.CreateRoom(r.Context(), kind, displayName, participants)
	if err != nil {
		h.logger.Error().Err(err).Msg("room creation failed")
		h.Error(w, http.StatusInternalServerError, chat.CodePersistenceFailure, "failed to create room")
		return
	}

	h.JSON(w, http.StatusCreated, room)
}

// ListRooms returns the rooms the caller participates in (authenticated).
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerProfile(w, r)
	if !ok {
		return
	}

	rooms, err := h.db.ListRoomsForProfile(r.Context(), caller.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("profile_id", caller.ID.String()).Msg("room listing failed")
		h.Error(w, http.StatusInternalServerError, chat.CodePersistenceFailure, "database error")
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}

	h.JSON(w, http.StatusOK, ListRoomsResponse{Rooms: rooms})
}
