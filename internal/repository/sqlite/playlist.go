package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

var _ repository.PlaylistRepository = (*PlaylistRepo)(nil)

// PlaylistRepo implements repository.PlaylistRepository.
//
// The composed reads here (GetByID, GetByShareToken) return the playlist
// plus its ordered entries with joined clips plus the collaborator roster
// in one call — the shape the playlist detail view renders from, and the
// shape incremental sync re-fetches one entry of.
type PlaylistRepo struct {
	conn *sql.DB
}

func NewPlaylistRepo(db *DB) *PlaylistRepo {
	return &PlaylistRepo{conn: db.conn}
}

func (r *PlaylistRepo) Create(ctx context.Context, playlist *model.Playlist) error {
	playlist.ID = xid.New().String()

	now := time.Now()
	playlist.CreatedAt = now
	playlist.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO playlists (id, name, owner_id, public, share_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		playlist.ID, playlist.Name, playlist.OwnerID, playlist.Public,
		playlist.ShareToken, playlist.CreatedAt, playlist.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating playlist: %w", err)
	}

	// The creator is always the owner collaborator.
	_, err = r.conn.ExecContext(ctx,
		`INSERT INTO playlist_collaborators (playlist_id, user_id, role)
		 VALUES (?, ?, ?)`,
		playlist.ID, playlist.OwnerID, model.RoleOwner,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating owner collaborator: %w", err)
	}

	return nil
}

func (r *PlaylistRepo) GetByID(ctx context.Context, id string) (*model.Playlist, error) {
	return r.getComposed(ctx, `WHERE p.id = ?`, id)
}

// GetByShareToken loads a playlist by its opaque share token. Only public
// playlists resolve this way — a private playlist's token is inert.
func (r *PlaylistRepo) GetByShareToken(ctx context.Context, token string) (*model.Playlist, error) {
	return r.getComposed(ctx, `WHERE p.share_token = ? AND p.public = 1 AND p.share_token != ''`, token)
}

func (r *PlaylistRepo) getComposed(ctx context.Context, where string, key string) (*model.Playlist, error) {
	var p model.Playlist
	err := r.conn.QueryRowContext(ctx,
		`SELECT p.id, p.name, p.owner_id, p.public, p.share_token, p.created_at, p.updated_at
		 FROM playlists p `+where, key,
	).Scan(&p.ID, &p.Name, &p.OwnerID, &p.Public, &p.ShareToken, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("playlist", key)
		}
		return nil, fmt.Errorf("sqlite: getting playlist %s: %w", key, err)
	}

	entries, err := r.listEntries(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Clips = entries

	collaborators, err := r.Collaborators(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Collaborators = collaborators

	return &p, nil
}

func (r *PlaylistRepo) listEntries(ctx context.Context, playlistID string) ([]model.PlaylistClip, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT e.id, e.playlist_id, e.clip_id, e.position, e.added_by, e.created_at,
		        `+clipColumns+`
		 FROM playlist_clips e
		 JOIN clips c ON c.id = e.clip_id
		 LEFT JOIN users u ON u.id = c.author_id
		 WHERE e.playlist_id = ?
		 ORDER BY e.position ASC`,
		playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing playlist entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.PlaylistClip, 0, 16)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning playlist entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating playlist entries: %w", err)
	}
	return entries, nil
}

// scanEntry reads one playlist entry with its joined clip. The scan order
// must match the SELECT in listEntries/GetEntry exactly.
func scanEntry(row interface{ Scan(...any) error }) (*model.PlaylistClip, error) {
	var (
		e         model.PlaylistClip
		c         model.Clip
		reactions string
		scheduled sql.NullTime
		author    struct {
			id, handle, name, avatar, bio sql.NullString
			createdAt, updatedAt          sql.NullTime
		}
	)

	err := row.Scan(
		&e.ID, &e.PlaylistID, &e.ClipID, &e.Position, &e.AddedBy, &e.CreatedAt,
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

	e.Clip = &c
	return &e, nil
}

func (r *PlaylistRepo) Update(ctx context.Context, playlist *model.Playlist) error {
	playlist.UpdatedAt = time.Now()

	result, err := r.conn.ExecContext(ctx,
		`UPDATE playlists
		 SET name = ?, public = ?, share_token = ?, updated_at = ?
		 WHERE id = ?`,
		playlist.Name, playlist.Public, playlist.ShareToken,
		playlist.UpdatedAt, playlist.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating playlist %s: %w", playlist.ID, err)
	}

	return checkAffected(result, "playlist", playlist.ID)
}

func (r *PlaylistRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning playlist delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_clips WHERE playlist_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting playlist entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_collaborators WHERE playlist_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting playlist collaborators: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting playlist %s: %w", id, err)
	}
	if err := checkAffected(result, "playlist", id); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PlaylistRepo) ListByUser(ctx context.Context, userID string) ([]model.Playlist, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT DISTINCT p.id, p.name, p.owner_id, p.public, p.share_token, p.created_at, p.updated_at
		 FROM playlists p
		 JOIN playlist_collaborators pc ON pc.playlist_id = p.id
		 WHERE pc.user_id = ?
		 ORDER BY p.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing playlists for user %s: %w", userID, err)
	}
	defer rows.Close()

	playlists := make([]model.Playlist, 0, 8)
	for rows.Next() {
		var p model.Playlist
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID, &p.Public, &p.ShareToken,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning playlist row: %w", err)
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating playlists: %w", err)
	}
	return playlists, nil
}

// AddClip appends an entry at the end of the playlist. Position is
// assigned inside the transaction (max+1) so two concurrent adds cannot
// claim the same slot.
func (r *PlaylistRepo) AddClip(ctx context.Context, entry *model.PlaylistClip) error {
	entry.ID = xid.New().String()
	entry.CreatedAt = time.Now()

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning playlist add: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM playlist_clips WHERE playlist_id = ?`,
		entry.PlaylistID,
	).Scan(&entry.Position)
	if err != nil {
		return fmt.Errorf("sqlite: computing next position: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO playlist_clips (id, playlist_id, clip_id, position, added_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.PlaylistID, entry.ClipID, entry.Position,
		entry.AddedBy, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding clip to playlist: %w", err)
	}

	return tx.Commit()
}

func (r *PlaylistRepo) GetEntry(ctx context.Context, entryID string) (*model.PlaylistClip, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT e.id, e.playlist_id, e.clip_id, e.position, e.added_by, e.created_at,
		        `+clipColumns+`
		 FROM playlist_clips e
		 JOIN clips c ON c.id = e.clip_id
		 LEFT JOIN users u ON u.id = c.author_id
		 WHERE e.id = ?`,
		entryID,
	)

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("playlist entry", entryID)
		}
		return nil, fmt.Errorf("sqlite: getting playlist entry %s: %w", entryID, err)
	}
	return entry, nil
}

// RemoveClip deletes the entry and compacts the remaining positions so
// they stay dense (0..n-1). Both steps happen in one transaction — a
// reader never observes a gap.
func (r *PlaylistRepo) RemoveClip(ctx context.Context, playlistID, clipID string) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning playlist remove: %w", err)
	}
	defer tx.Rollback()

	var removedPos int
	err = tx.QueryRowContext(ctx,
		`SELECT position FROM playlist_clips WHERE playlist_id = ? AND clip_id = ?`,
		playlistID, clipID,
	).Scan(&removedPos)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperror.NotFound("playlist entry", clipID)
		}
		return fmt.Errorf("sqlite: finding playlist entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM playlist_clips WHERE playlist_id = ? AND clip_id = ?`,
		playlistID, clipID,
	); err != nil {
		return fmt.Errorf("sqlite: removing clip from playlist: %w", err)
	}

	// Shift everything after the removed slot down by one.
	if _, err := tx.ExecContext(ctx,
		`UPDATE playlist_clips SET position = position - 1
		 WHERE playlist_id = ? AND position > ?`,
		playlistID, removedPos,
	); err != nil {
		return fmt.Errorf("sqlite: compacting positions: %w", err)
	}

	return tx.Commit()
}

// Reorder rewrites all positions from the given clip id order. The caller
// must pass every clip currently in the playlist; ids not in the playlist
// are ignored, missing ones keep their relative order pushed to the end by
// the dense rewrite of the ones given.
func (r *PlaylistRepo) Reorder(ctx context.Context, playlistID string, orderedClipIDs []string) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning reorder: %w", err)
	}
	defer tx.Rollback()

	for pos, clipID := range orderedClipIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE playlist_clips SET position = ?
			 WHERE playlist_id = ? AND clip_id = ?`,
			pos, playlistID, clipID,
		); err != nil {
			return fmt.Errorf("sqlite: reordering playlist %s: %w", playlistID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE playlists SET updated_at = ? WHERE id = ?`,
		time.Now(), playlistID,
	); err != nil {
		return fmt.Errorf("sqlite: touching playlist %s: %w", playlistID, err)
	}

	return tx.Commit()
}

func (r *PlaylistRepo) Collaborators(ctx context.Context, playlistID string) ([]model.Collaborator, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT pc.playlist_id, pc.user_id, pc.role, pc.created_at,
		        u.id, u.handle, u.name, u.avatar_url, u.bio, u.created_at, u.updated_at
		 FROM playlist_collaborators pc
		 JOIN users u ON u.id = pc.user_id
		 WHERE pc.playlist_id = ?
		 ORDER BY pc.created_at ASC`,
		playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing collaborators: %w", err)
	}
	defer rows.Close()

	collaborators := make([]model.Collaborator, 0, 4)
	for rows.Next() {
		var (
			c model.Collaborator
			u model.User
		)
		if err := rows.Scan(&c.PlaylistID, &c.UserID, &c.Role, &c.CreatedAt,
			&u.ID, &u.Handle, &u.Name, &u.AvatarURL, &u.Bio,
			&u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning collaborator: %w", err)
		}
		c.User = &u
		collaborators = append(collaborators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating collaborators: %w", err)
	}
	return collaborators, nil
}

func (r *PlaylistRepo) AddCollaborator(ctx context.Context, c *model.Collaborator) error {
	c.CreatedAt = time.Now()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO playlist_collaborators (playlist_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (playlist_id, user_id) DO UPDATE SET role = excluded.role`,
		c.PlaylistID, c.UserID, c.Role, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding collaborator: %w", err)
	}
	return nil
}

func (r *PlaylistRepo) RemoveCollaborator(ctx context.Context, playlistID, userID string) error {
	result, err := r.conn.ExecContext(ctx,
		`DELETE FROM playlist_collaborators WHERE playlist_id = ? AND user_id = ?`,
		playlistID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing collaborator: %w", err)
	}
	return checkAffected(result, "collaborator", userID)
}
