package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/waveroom/internal/auth"
	"github.com/sakif/waveroom/internal/service"
)

// ClipHandler exposes the clip API: feeds, the clip lifecycle, reactions,
// listens, and the per-user saved list.
type ClipHandler struct {
	clips  *service.ClipService
	logger *slog.Logger
}

func NewClipHandler(clips *service.ClipService, logger *slog.Logger) *ClipHandler {
	return &ClipHandler{clips: clips, logger: logger}
}

// createClipRequest is the JSON body of POST /api/clips.
type createClipRequest struct {
	AudioURL     string     `json:"audioUrl"`
	Mood         string     `json:"mood"`
	Duration     int        `json:"duration"`
	Transcript   string     `json:"transcript"`
	Summary      string     `json:"summary"`
	ScheduledAt  *time.Time `json:"scheduledAt"`
	ContentRated bool       `json:"contentRated"`
	ParentID     string     `json:"parentId"`
}

// HandleCreate posts a new clip (or a reply, when parentId is set).
//
// HTTP: POST /api/clips
// Auth: Required
func (h *ClipHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req createClipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	clip, err := h.clips.Create(r.Context(), userID, service.CreateClipInput{
		AudioURL:     req.AudioURL,
		Mood:         req.Mood,
		Duration:     req.Duration,
		Transcript:   req.Transcript,
		Summary:      req.Summary,
		ScheduledAt:  req.ScheduledAt,
		ContentRated: req.ContentRated,
		ParentID:     req.ParentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clip)
}

// HandleFeed returns the public feed.
//
// HTTP: GET /api/feed?limit=20&offset=0
func (h *ClipHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	clips, err := h.clips.Feed(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clips)
}

// HandleFollowingFeed returns clips from the authors the caller follows.
//
// HTTP: GET /api/feed/following
// Auth: Required
func (h *ClipHandler) HandleFollowingFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	limit, offset := listParams(r)
	clips, err := h.clips.FollowingFeed(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clips)
}

// HandleGet returns one clip with its joined author.
//
// HTTP: GET /api/clips/{id}
func (h *ClipHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	clip, err := h.clips.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

// HandleReplies returns the replies under a clip.
//
// HTTP: GET /api/clips/{id}/replies
func (h *ClipHandler) HandleReplies(w http.ResponseWriter, r *http.Request) {
	replies, err := h.clips.Replies(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replies)
}

// HandleHide takes the caller's live clip out of public feeds.
//
// HTTP: POST /api/clips/{id}/hide
// Auth: Required
func (h *ClipHandler) HandleHide(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.clips.Hide(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMakePrivate pulls the caller's live clip back to author-only
// visibility.
//
// HTTP: POST /api/clips/{id}/private
// Auth: Required
func (h *ClipHandler) HandleMakePrivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.clips.MakePrivate(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAnonymize strips the author from the caller's clip. Irreversible.
//
// HTTP: POST /api/clips/{id}/anonymize
// Auth: Required
func (h *ClipHandler) HandleAnonymize(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.clips.Anonymize(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete tombstones the caller's clip.
//
// HTTP: DELETE /api/clips/{id}
// Auth: Required
func (h *ClipHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.clips.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReact adds an emoji reaction and returns the updated clip.
//
// HTTP: POST /api/clips/{id}/react
// REQUEST BODY: {"emoji": "🔥"}
func (h *ClipHandler) HandleReact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	clip, err := h.clips.React(r.Context(), r.PathValue("id"), req.Emoji)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

// HandleListen records a listen. Fire-and-forget: 204, no body.
//
// HTTP: POST /api/clips/{id}/listen
func (h *ClipHandler) HandleListen(w http.ResponseWriter, r *http.Request) {
	if err := h.clips.RecordListen(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSave adds the clip to the caller's saved list.
//
// HTTP: POST /api/clips/{id}/save
// Auth: Required
func (h *ClipHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.clips.Save(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnsave removes the clip from the caller's saved list.
//
// HTTP: DELETE /api/clips/{id}/save
// Auth: Required
func (h *ClipHandler) HandleUnsave(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.clips.Unsave(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSaved returns the caller's saved clips.
//
// HTTP: GET /api/saved
// Auth: Required
func (h *ClipHandler) HandleSaved(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	clips, err := h.clips.Saved(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clips)
}

// listParams reads limit/offset query parameters. Missing or malformed
// values fall through as zero — the service clamps them to its defaults.
func listParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}
