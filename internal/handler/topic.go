package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/waveroom/internal/auth"
	"github.com/sakif/waveroom/internal/service"
)

// TopicHandler exposes discussion threads: the daily topic, community
// topics, and their comment trees.
type TopicHandler struct {
	topics *service.TopicService
	logger *slog.Logger
}

func NewTopicHandler(topics *service.TopicService, logger *slog.Logger) *TopicHandler {
	return &TopicHandler{topics: topics, logger: logger}
}

// HandleCreate opens a topic scoped to a date or a community.
//
// HTTP: POST /api/topics
// REQUEST BODY: {"title": "...", "date": "2026-08-31"} or {"title": "...", "communityId": "..."}
// Auth: Required
func (h *TopicHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Title       string `json:"title"`
		Date        string `json:"date"`
		CommunityID string `json:"communityId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	topic, err := h.topics.Create(r.Context(), userID, req.Title, req.Date, req.CommunityID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, topic)
}

// HandleGet returns the composed thread.
//
// HTTP: GET /api/topics/{id}
func (h *TopicHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	topic, err := h.topics.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

// HandleGetDaily returns the daily topic for a YYYY-MM-DD date.
//
// HTTP: GET /api/topics/daily/{date}
func (h *TopicHandler) HandleGetDaily(w http.ResponseWriter, r *http.Request) {
	topic, err := h.topics.GetByDate(r.Context(), r.PathValue("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

// HandleListByCommunity returns a community's topics.
//
// HTTP: GET /api/communities/{id}/topics
func (h *TopicHandler) HandleListByCommunity(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	topics, err := h.topics.ListByCommunity(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

// HandleComment posts a comment (or a reply, when parentId is set).
//
// HTTP: POST /api/topics/{id}/comments
// REQUEST BODY: {"body": "...", "parentId": "", "question": false}
// Auth: Required
func (h *TopicHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Body     string `json:"body"`
		ParentID string `json:"parentId"`
		Question bool   `json:"question"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	comment, err := h.topics.Comment(r.Context(), r.PathValue("id"), userID, req.Body, req.ParentID, req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// HandleUpvote bumps a comment's upvote counter.
//
// HTTP: POST /api/comments/{id}/upvote
func (h *TopicHandler) HandleUpvote(w http.ResponseWriter, r *http.Request) {
	comment, err := h.topics.Upvote(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

// HandleMarkAnswered flags a question as answered. Topic author only.
//
// HTTP: POST /api/comments/{id}/answered
// Auth: Required
func (h *TopicHandler) HandleMarkAnswered(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	comment, err := h.topics.MarkAnswered(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}
