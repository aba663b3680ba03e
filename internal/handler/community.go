package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/waveroom/internal/auth"
	"github.com/sakif/waveroom/internal/service"
)

// CommunityHandler exposes communities and memberships.
type CommunityHandler struct {
	communities *service.CommunityService
	logger      *slog.Logger
}

func NewCommunityHandler(communities *service.CommunityService, logger *slog.Logger) *CommunityHandler {
	return &CommunityHandler{communities: communities, logger: logger}
}

// HandleCreate makes a new community with the caller as its first member.
//
// HTTP: POST /api/communities
// REQUEST BODY: {"name": "late night", "description": "..."}
// Auth: Required
func (h *CommunityHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	community, err := h.communities.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, community)
}

// HandleGet returns one community.
//
// HTTP: GET /api/communities/{id}
func (h *CommunityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	community, err := h.communities.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, community)
}

// HandleList returns communities, largest first.
//
// HTTP: GET /api/communities?limit=20&offset=0
func (h *CommunityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := listParams(r)
	communities, err := h.communities.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, communities)
}

// HandleJoin adds the caller as a member.
//
// HTTP: POST /api/communities/{id}/join
// Auth: Required
func (h *CommunityHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.communities.Join(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLeave removes the caller's membership.
//
// HTTP: POST /api/communities/{id}/leave
// Auth: Required
func (h *CommunityHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.communities.Leave(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
