package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/waveroom/internal/auth"
	"github.com/sakif/waveroom/internal/service"
)

// PlaylistHandler exposes the playlist API: CRUD, share links, the ordered
// clip entries, and the collaborator roster.
type PlaylistHandler struct {
	playlists *service.PlaylistService
	logger    *slog.Logger
}

func NewPlaylistHandler(playlists *service.PlaylistService, logger *slog.Logger) *PlaylistHandler {
	return &PlaylistHandler{playlists: playlists, logger: logger}
}

// HandleCreate makes a new playlist owned by the caller.
//
// HTTP: POST /api/playlists
// Auth: Required
func (h *PlaylistHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Name   string `json:"name"`
		Public bool   `json:"public"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	playlist, err := h.playlists.Create(r.Context(), userID, req.Name, req.Public)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, playlist)
}

// HandleGet loads a playlist by primary id OR share token.
//
// HTTP: GET /api/playlists/{key}
//
// ONE ROUTE, TWO KEYS:
// The path parameter is either an internal id (internal navigation) or a
// share token (a pasted share link). The service routes on key length, so
// the handler doesn't need to care which one it got. Auth is optional:
// anonymous callers see public playlists only.
func (h *PlaylistHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	playlist, err := h.playlists.Get(r.Context(), r.PathValue("key"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

// HandleListMine returns the playlists the caller owns or collaborates on.
//
// HTTP: GET /api/playlists
// Auth: Required
func (h *PlaylistHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	playlists, err := h.playlists.ListMine(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

// HandleShare makes the playlist public and returns its share token.
//
// HTTP: POST /api/playlists/{key}/share
// Auth: Required
func (h *PlaylistHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	token, err := h.playlists.Share(r.Context(), r.PathValue("key"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shareToken": token})
}

// HandleRename updates the playlist name.
//
// HTTP: PUT /api/playlists/{key}
// Auth: Required
func (h *PlaylistHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	playlist, err := h.playlists.Rename(r.Context(), r.PathValue("key"), userID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

// HandleDelete removes the playlist. Owner only.
//
// HTTP: DELETE /api/playlists/{key}
// Auth: Required
func (h *PlaylistHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.playlists.Delete(r.Context(), r.PathValue("key"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddClip appends a clip to the playlist.
//
// HTTP: POST /api/playlists/{key}/clips
// REQUEST BODY: {"clipId": "..."}
// Auth: Required
func (h *PlaylistHandler) HandleAddClip(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		ClipID string `json:"clipId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.playlists.AddClip(r.Context(), r.PathValue("key"), req.ClipID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleRemoveClip removes a clip from the playlist.
//
// HTTP: DELETE /api/playlists/{key}/clips/{clipID}
// Auth: Required
func (h *PlaylistHandler) HandleRemoveClip(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.playlists.RemoveClip(r.Context(), r.PathValue("key"), r.PathValue("clipID"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReorder rewrites the playlist order.
//
// HTTP: PUT /api/playlists/{key}/order
// REQUEST BODY: {"clipIds": ["...", "..."]}
// Auth: Required
func (h *PlaylistHandler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		ClipIDs []string `json:"clipIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.playlists.Reorder(r.Context(), r.PathValue("key"), userID, req.ClipIDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCollaborators returns the collaborator roster.
//
// HTTP: GET /api/playlists/{key}/collaborators
func (h *PlaylistHandler) HandleCollaborators(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	collaborators, err := h.playlists.Collaborators(r.Context(), r.PathValue("key"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collaborators)
}

// HandleAddCollaborator grants a user editor access. Owner only.
//
// HTTP: POST /api/playlists/{key}/collaborators
// REQUEST BODY: {"userId": "..."}
// Auth: Required
func (h *PlaylistHandler) HandleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.playlists.AddCollaborator(r.Context(), r.PathValue("key"), userID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveCollaborator revokes a user's access. Owner only.
//
// HTTP: DELETE /api/playlists/{key}/collaborators/{userID}
// Auth: Required
func (h *PlaylistHandler) HandleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.playlists.RemoveCollaborator(r.Context(), r.PathValue("key"), callerID, r.PathValue("userID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
