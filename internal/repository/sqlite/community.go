package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

var _ repository.CommunityRepository = (*CommunityRepo)(nil)

type CommunityRepo struct {
	conn *sql.DB
}

func NewCommunityRepo(db *DB) *CommunityRepo {
	return &CommunityRepo{conn: db.conn}
}

func (r *CommunityRepo) Create(ctx context.Context, c *model.Community) error {
	c.ID = xid.New().String()
	c.CreatedAt = time.Now()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO communities (id, name, description, member_count, created_at)
		 VALUES (?, ?, ?, 0, ?)`,
		c.ID, c.Name, c.Description, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating community: %w", err)
	}
	return nil
}

func (r *CommunityRepo) GetByID(ctx context.Context, id string) (*model.Community, error) {
	var c model.Community
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, name, description, member_count, created_at
		 FROM communities WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.MemberCount, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("community", id)
		}
		return nil, fmt.Errorf("sqlite: getting community %s: %w", id, err)
	}
	return &c, nil
}

func (r *CommunityRepo) List(ctx context.Context, opts repository.ListOptions) ([]model.Community, error) {
	limit, offset := clampList(opts)

	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, name, description, member_count, created_at
		 FROM communities
		 ORDER BY member_count DESC, name ASC
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing communities: %w", err)
	}
	defer rows.Close()

	communities := make([]model.Community, 0, limit)
	for rows.Next() {
		var c model.Community
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.MemberCount,
			&c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning community: %w", err)
		}
		communities = append(communities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating communities: %w", err)
	}
	return communities, nil
}

// Join inserts the membership and bumps member_count in one transaction.
// Joining twice is a no-op: the count only moves when a row is actually
// inserted.
func (r *CommunityRepo) Join(ctx context.Context, communityID, userID string) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning community join: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO community_members (community_id, user_id) VALUES (?, ?)`,
		communityID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: joining community %s: %w", communityID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if inserted > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE communities SET member_count = member_count + 1 WHERE id = ?`,
			communityID,
		); err != nil {
			return fmt.Errorf("sqlite: bumping member count: %w", err)
		}
	}

	return tx.Commit()
}

func (r *CommunityRepo) Leave(ctx context.Context, communityID, userID string) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning community leave: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM community_members WHERE community_id = ? AND user_id = ?`,
		communityID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: leaving community %s: %w", communityID, err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if removed > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE communities SET member_count = MAX(member_count - 1, 0) WHERE id = ?`,
			communityID,
		); err != nil {
			return fmt.Errorf("sqlite: dropping member count: %w", err)
		}
	}

	return tx.Commit()
}

func (r *CommunityRepo) IsMember(ctx context.Context, communityID, userID string) (bool, error) {
	var count int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM community_members WHERE community_id = ? AND user_id = ?`,
		communityID, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking membership: %w", err)
	}
	return count > 0, nil
}
