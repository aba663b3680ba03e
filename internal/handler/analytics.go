package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/waveroom/internal/auth"
	"github.com/sakif/waveroom/internal/service"
)

// AnalyticsHandler exposes the dashboard queries.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	logger    *slog.Logger
}

func NewAnalyticsHandler(analytics *service.AnalyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, logger: logger}
}

// HandleTopCreators returns the listen-count leaderboard.
//
// HTTP: GET /api/analytics/top-creators?limit=10
func (h *AnalyticsHandler) HandleTopCreators(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	stats, err := h.analytics.TopCreators(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleMyStats returns the caller's creator dashboard numbers.
//
// HTTP: GET /api/analytics/me
// Auth: Required
func (h *AnalyticsHandler) HandleMyStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	stats, err := h.analytics.CreatorStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleCreatorStats returns any creator's public numbers.
//
// HTTP: GET /api/analytics/creators/{id}
func (h *AnalyticsHandler) HandleCreatorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.CreatorStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
