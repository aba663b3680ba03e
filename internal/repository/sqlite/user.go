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

var _ repository.UserRepository = (*UserRepo)(nil)

type UserRepo struct {
	conn *sql.DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{conn: db.conn}
}

const userColumns = `id, handle, name, avatar_url, bio, pin_hash, github_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Handle, &u.Name, &u.AvatarURL, &u.Bio,
		&u.PINHash, &u.GitHubID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (id, handle, name, avatar_url, bio, pin_hash, github_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Handle, user.Name, user.AvatarURL, user.Bio,
		user.PINHash, user.GitHubID, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

func (r *UserRepo) GetByHandle(ctx context.Context, handle string) (*model.User, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE handle = ?`, handle)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", handle)
		}
		return nil, fmt.Errorf("sqlite: getting user by handle %s: %w", handle, err)
	}
	return u, nil
}

func (r *UserRepo) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ? AND github_id != 0`, githubID)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
		}
		return nil, fmt.Errorf("sqlite: getting user by github id %d: %w", githubID, err)
	}
	return u, nil
}

func (r *UserRepo) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	result, err := r.conn.ExecContext(ctx,
		`UPDATE users
		 SET handle = ?, name = ?, avatar_url = ?, bio = ?, pin_hash = ?,
		     github_id = ?, updated_at = ?
		 WHERE id = ?`,
		user.Handle, user.Name, user.AvatarURL, user.Bio, user.PINHash,
		user.GitHubID, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return checkAffected(result, "user", user.ID)
}

// Follow is idempotent: following someone twice leaves a single edge.
func (r *UserRepo) Follow(ctx context.Context, followerID, followeeID string) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO follows (follower_id, followee_id) VALUES (?, ?)`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: following %s: %w", followeeID, err)
	}
	return nil
}

func (r *UserRepo) Unfollow(ctx context.Context, followerID, followeeID string) error {
	_, err := r.conn.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unfollowing %s: %w", followeeID, err)
	}
	return nil
}

func (r *UserRepo) Following(ctx context.Context, followerID string) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT followee_id FROM follows WHERE follower_id = ? ORDER BY created_at ASC`,
		followerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing follows: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning follow: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating follows: %w", err)
	}
	return ids, nil
}

func (r *UserRepo) CreateLoginLink(ctx context.Context, link *model.LoginLink) error {
	link.CreatedAt = time.Now()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO login_links (token, user_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?)`,
		link.Token, link.UserID, link.ExpiresAt, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating login link: %w", err)
	}
	return nil
}

func (r *UserRepo) GetLoginLink(ctx context.Context, token string) (*model.LoginLink, error) {
	var (
		link model.LoginLink
		used sql.NullTime
	)
	err := r.conn.QueryRowContext(ctx,
		`SELECT token, user_id, expires_at, used_at, created_at
		 FROM login_links WHERE token = ?`, token,
	).Scan(&link.Token, &link.UserID, &link.ExpiresAt, &used, &link.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("login link", token)
		}
		return nil, fmt.Errorf("sqlite: getting login link: %w", err)
	}
	if used.Valid {
		t := used.Time
		link.UsedAt = &t
	}
	return &link, nil
}

// MarkLinkUsed burns the link. The used_at IS NULL guard makes redemption
// atomic: two concurrent redeems race on the UPDATE and only one wins.
func (r *UserRepo) MarkLinkUsed(ctx context.Context, token string, at time.Time) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE login_links SET used_at = ? WHERE token = ? AND used_at IS NULL`,
		at, token,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking login link used: %w", err)
	}
	return checkAffected(result, "login link", token)
}
