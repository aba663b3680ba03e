package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

var _ repository.DiaryRepository = (*DiaryRepo)(nil)

// DiaryRepo stores diary rows without ever looking inside them. The
// ciphertext, nonce and salt columns are opaque blobs written by the
// client; there is nothing here to join, filter, or search on besides the
// owning user and timestamps.
type DiaryRepo struct {
	conn *sql.DB
}

func NewDiaryRepo(db *DB) *DiaryRepo {
	return &DiaryRepo{conn: db.conn}
}

func (r *DiaryRepo) Create(ctx context.Context, entry *model.DiaryEntry) error {
	entry.ID = uuid.NewString()

	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO diary_entries (id, user_id, ciphertext, nonce, salt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Ciphertext, entry.Nonce, entry.Salt,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating diary entry: %w", err)
	}
	return nil
}

func (r *DiaryRepo) GetByID(ctx context.Context, id string) (*model.DiaryEntry, error) {
	var e model.DiaryEntry
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, user_id, ciphertext, nonce, salt, created_at, updated_at
		 FROM diary_entries WHERE id = ?`, id,
	).Scan(&e.ID, &e.UserID, &e.Ciphertext, &e.Nonce, &e.Salt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("diary entry", id)
		}
		return nil, fmt.Errorf("sqlite: getting diary entry %s: %w", id, err)
	}
	return &e, nil
}

func (r *DiaryRepo) ListByUser(ctx context.Context, userID string) ([]model.DiaryEntry, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, user_id, ciphertext, nonce, salt, created_at, updated_at
		 FROM diary_entries
		 WHERE user_id = ?
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing diary entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.DiaryEntry, 0, 16)
	for rows.Next() {
		var e model.DiaryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Ciphertext, &e.Nonce, &e.Salt,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning diary entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating diary entries: %w", err)
	}
	return entries, nil
}

func (r *DiaryRepo) Update(ctx context.Context, entry *model.DiaryEntry) error {
	entry.UpdatedAt = time.Now()

	result, err := r.conn.ExecContext(ctx,
		`UPDATE diary_entries
		 SET ciphertext = ?, nonce = ?, salt = ?, updated_at = ?
		 WHERE id = ?`,
		entry.Ciphertext, entry.Nonce, entry.Salt, entry.UpdatedAt, entry.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating diary entry %s: %w", entry.ID, err)
	}
	return checkAffected(result, "diary entry", entry.ID)
}

func (r *DiaryRepo) Delete(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx,
		`DELETE FROM diary_entries WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting diary entry %s: %w", id, err)
	}
	return checkAffected(result, "diary entry", id)
}
