package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

// Compile-time check that *ClipRepo satisfies the interface. If a method
// is missing or has the wrong signature, this line fails the build instead
// of surfacing much later at a call site.
var _ repository.ClipRepository = (*ClipRepo)(nil)

// ClipRepo implements repository.ClipRepository on top of the shared pool.
type ClipRepo struct {
	conn *sql.DB
}

func NewClipRepo(db *DB) *ClipRepo {
	return &ClipRepo{conn: db.conn}
}

// clipColumns is the SELECT list shared by every clip query. Author
// columns are joined with LEFT JOIN so a clip whose author was anonymized
// (author_id = '') still scans cleanly.
const clipColumns = `
	c.id, c.author_id, c.audio_url, c.mood, c.duration, c.transcript,
	c.summary, c.status, c.reactions, c.listen_count, c.scheduled_at,
	c.content_rated, c.parent_id, c.created_at, c.updated_at,
	u.id, u.handle, u.name, u.avatar_url, u.bio, u.created_at, u.updated_at`

const clipFrom = ` FROM clips c LEFT JOIN users u ON u.id = c.author_id `

// scanClip reads one composed clip row: the clip itself plus the joined
// author profile (nil when the author is gone or anonymized).
func scanClip(row interface{ Scan(...any) error }) (*model.Clip, error) {
	var (
		c         model.Clip
		reactions string
		scheduled sql.NullTime
		author    struct {
			id, handle, name, avatar, bio sql.NullString
			createdAt, updatedAt          sql.NullTime
		}
	)

	err := row.Scan(
		&c.ID, &c.AuthorID, &c.AudioURL, &c.Mood, &c.Duration, &c.Transcript,
		&c.Summary, &c.Status, &reactions, &c.ListenCount, &scheduled,
		&c.ContentRated, &c.ParentID, &c.CreatedAt, &c.UpdatedAt,
		&author.id, &author.handle, &author.name, &author.avatar, &author.bio,
		&author.createdAt, &author.updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if scheduled.Valid {
		t := scheduled.Time
		c.ScheduledAt = &t
	}

	// Reaction counts are stored as a JSON object keyed by emoji. A corrupt
	// column should not kill the whole read — fall back to empty counts.
	c.Reactions = map[string]int{}
	if reactions != "" {
		if err := json.Unmarshal([]byte(reactions), &c.Reactions); err != nil {
			c.Reactions = map[string]int{}
		}
	}

	if author.id.Valid && author.id.String != "" {
		c.Author = &model.User{
			ID:        author.id.String,
			Handle:    author.handle.String,
			Name:      author.name.String,
			AvatarURL: author.avatar.String,
			Bio:       author.bio.String,
			CreatedAt: author.createdAt.Time,
			UpdatedAt: author.updatedAt.Time,
		}
	}

	return &c, nil
}

func (r *ClipRepo) Create(ctx context.Context, clip *model.Clip) error {
	clip.ID = xid.New().String()

	now := time.Now()
	clip.CreatedAt = now
	clip.UpdatedAt = now

	if clip.Reactions == nil {
		clip.Reactions = map[string]int{}
	}
	reactions, err := json.Marshal(clip.Reactions)
	if err != nil {
		return fmt.Errorf("sqlite: encoding reactions: %w", err)
	}

	var scheduled any
	if clip.ScheduledAt != nil {
		scheduled = *clip.ScheduledAt
	}

	_, err = r.conn.ExecContext(ctx,
		`INSERT INTO clips (id, author_id, audio_url, mood, duration, transcript,
		                    summary, status, reactions, listen_count, scheduled_at,
		                    content_rated, parent_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clip.ID, clip.AuthorID, clip.AudioURL, clip.Mood, clip.Duration,
		clip.Transcript, clip.Summary, clip.Status, string(reactions),
		clip.ListenCount, scheduled, clip.ContentRated, clip.ParentID,
		clip.CreatedAt, clip.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating clip: %w", err)
	}

	return nil
}

func (r *ClipRepo) GetByID(ctx context.Context, id string) (*model.Clip, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+clipColumns+clipFrom+`WHERE c.id = ?`, id)

	clip, err := scanClip(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("clip", id)
		}
		return nil, fmt.Errorf("sqlite: getting clip %s: %w", id, err)
	}

	return clip, nil
}

// ListFeed returns live clips, newest first. Hidden/deleted/draft clips
// never appear — the feed filter is status = 'live', nothing else.
func (r *ClipRepo) ListFeed(ctx context.Context, opts repository.ListOptions) ([]model.Clip, error) {
	limit, offset := clampList(opts)

	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+clipColumns+clipFrom+`
		 WHERE c.status = ? AND c.parent_id = ''
		 ORDER BY c.created_at DESC
		 LIMIT ? OFFSET ?`,
		model.ClipStatusLive, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing feed: %w", err)
	}
	defer rows.Close()

	return collectClips(rows, limit)
}

// ListByAuthors is the Following feed: live clips from a fixed set of
// profile ids. An empty author set short-circuits to an empty slice — an
// `IN ()` clause is invalid SQL.
func (r *ClipRepo) ListByAuthors(ctx context.Context, authorIDs []string, opts repository.ListOptions) ([]model.Clip, error) {
	if len(authorIDs) == 0 {
		return []model.Clip{}, nil
	}

	limit, offset := clampList(opts)

	placeholders := strings.Repeat("?,", len(authorIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(authorIDs)+3)
	args = append(args, model.ClipStatusLive)
	for _, id := range authorIDs {
		args = append(args, id)
	}
	args = append(args, limit, offset)

	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+clipColumns+clipFrom+`
		 WHERE c.status = ? AND c.author_id IN (`+placeholders+`)
		 ORDER BY c.created_at DESC
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing clips by authors: %w", err)
	}
	defer rows.Close()

	return collectClips(rows, limit)
}

func (r *ClipRepo) ListReplies(ctx context.Context, parentID string) ([]model.Clip, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+clipColumns+clipFrom+`
		 WHERE c.parent_id = ? AND c.status = ?
		 ORDER BY c.created_at ASC`,
		parentID, model.ClipStatusLive,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing replies of %s: %w", parentID, err)
	}
	defer rows.Close()

	return collectClips(rows, 16)
}

func (r *ClipRepo) Update(ctx context.Context, clip *model.Clip) error {
	clip.UpdatedAt = time.Now()

	reactions, err := json.Marshal(clip.Reactions)
	if err != nil {
		return fmt.Errorf("sqlite: encoding reactions: %w", err)
	}

	var scheduled any
	if clip.ScheduledAt != nil {
		scheduled = *clip.ScheduledAt
	}

	result, err := r.conn.ExecContext(ctx,
		`UPDATE clips
		 SET audio_url = ?, mood = ?, duration = ?, transcript = ?, summary = ?,
		     status = ?, reactions = ?, scheduled_at = ?, content_rated = ?,
		     updated_at = ?
		 WHERE id = ?`,
		clip.AudioURL, clip.Mood, clip.Duration, clip.Transcript, clip.Summary,
		clip.Status, string(reactions), scheduled, clip.ContentRated,
		clip.UpdatedAt, clip.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating clip %s: %w", clip.ID, err)
	}

	return checkAffected(result, "clip", clip.ID)
}

func (r *ClipRepo) SetStatus(ctx context.Context, id string, status model.ClipStatus) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE clips SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting clip %s status: %w", id, err)
	}

	return checkAffected(result, "clip", id)
}

// ListScheduledDue returns drafts whose scheduled time has arrived. The
// publish sweep calls this on a timer and flips each result to live.
func (r *ClipRepo) ListScheduledDue(ctx context.Context, now time.Time) ([]model.Clip, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+clipColumns+clipFrom+`
		 WHERE c.status = ? AND c.scheduled_at IS NOT NULL AND c.scheduled_at <= ?
		 ORDER BY c.scheduled_at ASC`,
		model.ClipStatusDraft, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing due scheduled clips: %w", err)
	}
	defer rows.Close()

	return collectClips(rows, 16)
}

// Anonymize strips attribution: the author reference is cleared but the
// clip itself stays up. Irreversible by construction — the old author_id
// is not recorded anywhere.
func (r *ClipRepo) Anonymize(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE clips SET author_id = '', updated_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: anonymizing clip %s: %w", id, err)
	}

	return checkAffected(result, "clip", id)
}

// AddReaction bumps one emoji's count inside the reactions JSON column.
// Read-modify-write in a transaction: SQLite serializes writers, so two
// concurrent reactions cannot lose an increment.
func (r *ClipRepo) AddReaction(ctx context.Context, id, emoji string) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning reaction tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT reactions FROM clips WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperror.NotFound("clip", id)
		}
		return fmt.Errorf("sqlite: reading reactions of %s: %w", id, err)
	}

	counts := map[string]int{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &counts); err != nil {
			counts = map[string]int{}
		}
	}
	counts[emoji]++

	updated, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("sqlite: encoding reactions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE clips SET reactions = ?, updated_at = ? WHERE id = ?`,
		string(updated), time.Now(), id,
	); err != nil {
		return fmt.Errorf("sqlite: writing reactions of %s: %w", id, err)
	}

	return tx.Commit()
}

func (r *ClipRepo) IncrementListens(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE clips SET listen_count = listen_count + 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing listens of %s: %w", id, err)
	}

	return checkAffected(result, "clip", id)
}

func (r *ClipRepo) Save(ctx context.Context, userID, clipID string) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO saved_clips (user_id, clip_id) VALUES (?, ?)`,
		userID, clipID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving clip %s: %w", clipID, err)
	}
	return nil
}

func (r *ClipRepo) Unsave(ctx context.Context, userID, clipID string) error {
	_, err := r.conn.ExecContext(ctx,
		`DELETE FROM saved_clips WHERE user_id = ? AND clip_id = ?`,
		userID, clipID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unsaving clip %s: %w", clipID, err)
	}
	return nil
}

// ListSaved returns the user's saved clips, most recently saved first.
// Only live clips come back: a clip hidden after being saved silently
// drops out of the list, same as it drops out of feeds.
func (r *ClipRepo) ListSaved(ctx context.Context, userID string) ([]model.Clip, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+clipColumns+`
		 FROM saved_clips s
		 JOIN clips c ON c.id = s.clip_id
		 LEFT JOIN users u ON u.id = c.author_id
		 WHERE s.user_id = ? AND c.status = ?
		 ORDER BY s.created_at DESC`,
		userID, model.ClipStatusLive,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing saved clips: %w", err)
	}
	defer rows.Close()

	return collectClips(rows, 32)
}

func collectClips(rows *sql.Rows, capacity int) ([]model.Clip, error) {
	clips := make([]model.Clip, 0, capacity)
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning clip row: %w", err)
		}
		clips = append(clips, *clip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating clips: %w", err)
	}
	return clips, nil
}

func clampList(opts repository.ListOptions) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset = opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func checkAffected(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
