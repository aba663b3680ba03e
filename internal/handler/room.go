package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/waveroom/internal/auth"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/service"
)

// RoomHandler exposes the live-room API: rooms, the participant roster,
// roles, flags, and the presence heartbeat.
//
// No audio flows through these endpoints. They manage who is in a room and
// in what state; media transport is a separate concern.
type RoomHandler struct {
	rooms  *service.RoomService
	logger *slog.Logger
}

func NewRoomHandler(rooms *service.RoomService, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, logger: logger}
}

// HandleCreate opens a new live room hosted by the caller.
//
// HTTP: POST /api/rooms
// REQUEST BODY: {"title": "open mic", "communityId": ""}
// Auth: Required
func (h *RoomHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Title       string `json:"title"`
		CommunityID string `json:"communityId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	room, err := h.rooms.Create(r.Context(), userID, req.Title, req.CommunityID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// HandleGet returns the composed room with its present participants.
//
// HTTP: GET /api/rooms/{id}
func (h *RoomHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// HandleListLive returns currently live rooms.
//
// HTTP: GET /api/rooms?limit=20&offset=0
func (h *RoomHandler) HandleListLive(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	rooms, err := h.rooms.ListLive(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// HandleJoin joins the caller to the room as a listener.
//
// HTTP: POST /api/rooms/{id}/join
// Auth: Required
//
// A community-gated room answers non-members with 403; the error message
// names the community so the client can route the user to its join page.
func (h *RoomHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	p, err := h.rooms.Join(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleLeave removes the caller from the room.
//
// HTTP: POST /api/rooms/{id}/leave
// Auth: Required
func (h *RoomHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.rooms.Leave(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetFlags flips the caller's own muted/speaking bits.
//
// HTTP: PUT /api/rooms/{id}/flags
// REQUEST BODY: {"muted": true, "speaking": false}
// Auth: Required
func (h *RoomHandler) HandleSetFlags(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Muted    bool `json:"muted"`
		Speaking bool `json:"speaking"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.rooms.SetFlags(r.Context(), r.PathValue("id"), userID, req.Muted, req.Speaking)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleSetRole changes another participant's role. Host/moderator only.
//
// HTTP: PUT /api/rooms/{id}/roles
// REQUEST BODY: {"userId": "...", "role": "speaker"}
// Auth: Required
func (h *RoomHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.rooms.SetRole(r.Context(), r.PathValue("id"), callerID, req.UserID, model.ParticipantRole(req.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleHeartbeat refreshes the room's presence lease.
//
// HTTP: POST /api/rooms/{id}/heartbeat
// Auth: Required
func (h *RoomHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserIDFromContext(r.Context()); !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.rooms.Heartbeat(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEnd closes the room. Host only.
//
// HTTP: POST /api/rooms/{id}/end
// Auth: Required
func (h *RoomHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.rooms.End(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
