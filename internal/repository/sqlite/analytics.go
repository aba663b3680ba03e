package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

var _ repository.AnalyticsRepository = (*AnalyticsRepo)(nil)

// AnalyticsRepo aggregates over clip rows. Only status = 'live' counts:
// hiding or deleting a clip removes its listens from the leaderboard too.
type AnalyticsRepo struct {
	conn *sql.DB
}

func NewAnalyticsRepo(db *DB) *AnalyticsRepo {
	return &AnalyticsRepo{conn: db.conn}
}

func (r *AnalyticsRepo) TopCreators(ctx context.Context, limit int) ([]model.CreatorStats, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT u.id, u.handle, u.name, u.avatar_url,
		        COUNT(c.id) AS clip_count,
		        COALESCE(SUM(c.listen_count), 0) AS total_listens
		 FROM users u
		 JOIN clips c ON c.author_id = u.id AND c.status = 'live'
		 GROUP BY u.id
		 ORDER BY total_listens DESC, clip_count DESC, u.handle ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing top creators: %w", err)
	}
	defer rows.Close()

	stats := make([]model.CreatorStats, 0, limit)
	for rows.Next() {
		var s model.CreatorStats
		if err := rows.Scan(&s.UserID, &s.Handle, &s.Name, &s.AvatarURL,
			&s.ClipCount, &s.TotalListens); err != nil {
			return nil, fmt.Errorf("sqlite: scanning creator stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating creator stats: %w", err)
	}
	return stats, nil
}

// CreatorStats returns the aggregate for one user. A user with no live
// clips still gets a row — zeros, not NotFound — so a brand-new creator's
// dashboard renders.
func (r *AnalyticsRepo) CreatorStats(ctx context.Context, userID string) (*model.CreatorStats, error) {
	var s model.CreatorStats
	err := r.conn.QueryRowContext(ctx,
		`SELECT u.id, u.handle, u.name, u.avatar_url,
		        COUNT(c.id) AS clip_count,
		        COALESCE(SUM(c.listen_count), 0) AS total_listens
		 FROM users u
		 LEFT JOIN clips c ON c.author_id = u.id AND c.status = 'live'
		 WHERE u.id = ?
		 GROUP BY u.id`,
		userID,
	).Scan(&s.UserID, &s.Handle, &s.Name, &s.AvatarURL, &s.ClipCount, &s.TotalListens)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("sqlite: getting creator stats for %s: %w", userID, err)
	}
	return &s, nil
}
