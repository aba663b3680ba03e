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

var _ repository.RoomRepository = (*RoomRepo)(nil)

// RoomRepo is the durable mirror of room state. The live presence set in
// Redis answers "who is here right now"; these rows answer everything
// else, including the left_at history after a room ends.
type RoomRepo struct {
	conn *sql.DB
}

func NewRoomRepo(db *DB) *RoomRepo {
	return &RoomRepo{conn: db.conn}
}

func (r *RoomRepo) Create(ctx context.Context, room *model.Room) error {
	room.ID = xid.New().String()
	room.CreatedAt = time.Now()
	room.Live = true

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO rooms (id, title, host_id, community_id, live, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		room.ID, room.Title, room.HostID, room.CommunityID, room.Live, room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating room: %w", err)
	}
	return nil
}

// GetByID returns the room with its present participants (left_at IS
// NULL), each with the joined user profile.
func (r *RoomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	var (
		room  model.Room
		ended sql.NullTime
	)
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, title, host_id, community_id, live, created_at, ended_at
		 FROM rooms WHERE id = ?`, id,
	).Scan(&room.ID, &room.Title, &room.HostID, &room.CommunityID, &room.Live,
		&room.CreatedAt, &ended)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("room", id)
		}
		return nil, fmt.Errorf("sqlite: getting room %s: %w", id, err)
	}
	if ended.Valid {
		t := ended.Time
		room.EndedAt = &t
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT p.id, p.room_id, p.user_id, p.role, p.muted, p.speaking, p.joined_at, p.left_at,
		        u.id, u.handle, u.name, u.avatar_url, u.bio, u.created_at, u.updated_at
		 FROM room_participants p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.room_id = ? AND p.left_at IS NULL
		 ORDER BY p.joined_at ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing participants of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanParticipant(rows, true)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning participant: %w", err)
		}
		room.Participants = append(room.Participants, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating participants: %w", err)
	}

	return &room, nil
}

func scanParticipant(row interface{ Scan(...any) error }, withUser bool) (*model.Participant, error) {
	var (
		p    model.Participant
		left sql.NullTime
		u    model.User
	)

	dest := []any{&p.ID, &p.RoomID, &p.UserID, &p.Role, &p.Muted, &p.Speaking,
		&p.JoinedAt, &left}
	if withUser {
		dest = append(dest, &u.ID, &u.Handle, &u.Name, &u.AvatarURL, &u.Bio,
			&u.CreatedAt, &u.UpdatedAt)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if left.Valid {
		t := left.Time
		p.LeftAt = &t
	}
	if withUser {
		p.User = &u
	}
	return &p, nil
}

func (r *RoomRepo) ListLive(ctx context.Context, opts repository.ListOptions) ([]model.Room, error) {
	limit, offset := clampList(opts)

	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, title, host_id, community_id, live, created_at, ended_at
		 FROM rooms
		 WHERE live = 1
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing live rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]model.Room, 0, limit)
	for rows.Next() {
		var (
			room  model.Room
			ended sql.NullTime
		)
		if err := rows.Scan(&room.ID, &room.Title, &room.HostID, &room.CommunityID,
			&room.Live, &room.CreatedAt, &ended); err != nil {
			return nil, fmt.Errorf("sqlite: scanning room: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			room.EndedAt = &t
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating rooms: %w", err)
	}
	return rooms, nil
}

// End marks the room finished and closes every open participant row in
// the same transaction — nobody stays "present" in a dead room.
func (r *RoomRepo) End(ctx context.Context, id string) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning room end: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	result, err := tx.ExecContext(ctx,
		`UPDATE rooms SET live = 0, ended_at = ? WHERE id = ? AND live = 1`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: ending room %s: %w", id, err)
	}
	if err := checkAffected(result, "room", id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE room_participants SET left_at = ? WHERE room_id = ? AND left_at IS NULL`,
		now, id,
	); err != nil {
		return fmt.Errorf("sqlite: closing participant rows: %w", err)
	}

	return tx.Commit()
}

func (r *RoomRepo) AddParticipant(ctx context.Context, p *model.Participant) error {
	p.ID = xid.New().String()
	p.JoinedAt = time.Now()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO room_participants (id, room_id, user_id, role, muted, speaking, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RoomID, p.UserID, p.Role, p.Muted, p.Speaking, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding participant: %w", err)
	}
	return nil
}

func (r *RoomRepo) GetParticipant(ctx context.Context, id string) (*model.Participant, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT p.id, p.room_id, p.user_id, p.role, p.muted, p.speaking, p.joined_at, p.left_at,
		        u.id, u.handle, u.name, u.avatar_url, u.bio, u.created_at, u.updated_at
		 FROM room_participants p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.id = ?`,
		id,
	)

	p, err := scanParticipant(row, true)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("participant", id)
		}
		return nil, fmt.Errorf("sqlite: getting participant %s: %w", id, err)
	}
	return p, nil
}

// FindPresent returns the user's open participant row in the room, or
// NotFound if they are not currently in it.
func (r *RoomRepo) FindPresent(ctx context.Context, roomID, userID string) (*model.Participant, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT id, room_id, user_id, role, muted, speaking, joined_at, left_at
		 FROM room_participants
		 WHERE room_id = ? AND user_id = ? AND left_at IS NULL`,
		roomID, userID,
	)

	p, err := scanParticipant(row, false)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("participant", userID)
		}
		return nil, fmt.Errorf("sqlite: finding participant: %w", err)
	}
	return p, nil
}

func (r *RoomRepo) UpdateParticipant(ctx context.Context, p *model.Participant) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE room_participants SET role = ?, muted = ?, speaking = ? WHERE id = ?`,
		p.Role, p.Muted, p.Speaking, p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating participant %s: %w", p.ID, err)
	}
	return checkAffected(result, "participant", p.ID)
}

func (r *RoomRepo) MarkLeft(ctx context.Context, participantID string, at time.Time) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE room_participants SET left_at = ? WHERE id = ? AND left_at IS NULL`,
		at, participantID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking participant %s left: %w", participantID, err)
	}
	return checkAffected(result, "participant", participantID)
}
