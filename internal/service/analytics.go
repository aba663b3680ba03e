package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

const DefaultLeaderboardSize = 10

// AnalyticsService answers the dashboard queries. Read-only — it never
// publishes change-feed events because it never mutates anything.
type AnalyticsService struct {
	analytics repository.AnalyticsRepository
	logger    *slog.Logger
}

func NewAnalyticsService(analytics repository.AnalyticsRepository, logger *slog.Logger) *AnalyticsService {
	return &AnalyticsService{
		analytics: analytics,
		logger:    logger,
	}
}

// TopCreators returns the listen-count leaderboard. Only live clips
// count; a creator whose clips are all hidden falls off the board.
func (s *AnalyticsService) TopCreators(ctx context.Context, limit int) ([]model.CreatorStats, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.analytics.TopCreators(ctx, limit)
}

// CreatorStats returns one creator's aggregate numbers for their
// dashboard.
func (s *AnalyticsService) CreatorStats(ctx context.Context, userID string) (*model.CreatorStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user ID is required")
	}
	return s.analytics.CreatorStats(ctx, userID)
}
