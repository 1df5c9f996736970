package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/campuslink/campuslink/internal/chat"
	"github.com/campuslink/campuslink/internal/metrics"
	"github.com/campuslink/campuslink/internal/models"
)

// RoomMessagesResponse represents the catch-up read response. NextAfter is
// the cursor for the following page: the sequence number of the last message
// returned, or the request's cursor when the page is empty.
type RoomMessagesResponse struct {
	RoomID    string           `json:"room_id"`
	Messages  []models.Message `json:"messages"`
	NextAfter uint64           `json:"next_after"`
	HasMore   bool             `json:"has_more"`
}

// GetRoomMessages returns room messages with sequence numbers strictly
// greater than the after cursor, in ascending order (authenticated, members
// only). Clients reconnecting replay from their last seen sequence number.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerProfile(w, r)
	if !ok {
		return
	}

	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "invalid room ID format")
		return
	}

	room, err := h.db.GetRoom(r.Context(), roomID)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID.String()).Msg("room lookup failed")
		h.Error(w, http.StatusInternalServerError, chat.CodePersistenceFailure, "database error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, chat.CodeRoomNotFound, "room not found")
		return
	}

	member, err := h.db.IsParticipant(r.Context(), roomID, caller.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID.String()).Msg("membership check failed")
		h.Error(w, http.StatusInternalServerError, chat.CodePersistenceFailure, "database error")
		return
	}
	if !member {
		h.Error(w, http.StatusForbidden, chat.CodeNotAMember, "not a participant of this room")
		return
	}

	var after uint64
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		after, err = strconv.ParseUint(afterStr, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "BAD_REQUEST", "after must be a non-negative integer")
			return
		}
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > h.historyLimit {
		limit = h.historyLimit
	}

	// Fetch one extra message to decide has_more
	messages, err := h.history.List(r.Context(), roomID.String(), after, limit+1)
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID.String()).Msg("history read failed")
		h.Error(w, http.StatusInternalServerError, chat.CodePersistenceFailure, "failed to fetch messages")
		return
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	nextAfter := after
	if len(messages) > 0 {
		nextAfter = messages[len(messages)-1].Seq
	}

	metrics.CatchupReads.Inc()

	h.JSON(w, http.StatusOK, RoomMessagesResponse{
		RoomID:    roomID.String(),
		Messages:  messages,
		NextAfter: nextAfter,
		HasMore:   hasMore,
	})
}
