package model

import "time"

// ParticipantRole is a participant's role inside a live room.
type ParticipantRole string

const (
	RoomRoleHost      ParticipantRole = "host"
	RoomRoleModerator ParticipantRole = "moderator"
	RoomRoleSpeaker   ParticipantRole = "speaker"
	RoomRoleListener  ParticipantRole = "listener"
)

// Room is a live audio session.
//
// CommunityID, when set, gates entry: only members of that community may
// join. The gate is enforced at join time by the room service.
//
// Audio itself does not flow through this server. Room state here is the
// roster and its flags; actual media transport is a separate, unsolved
// concern (there is no signaling server).
type Room struct {
	ID          string    `json:"id"          db:"id"`
	Title       string    `json:"title"       db:"title"`
	HostID      string    `json:"hostId"      db:"host_id"`
	CommunityID string    `json:"communityId,omitempty" db:"community_id"`
	Live        bool      `json:"live"        db:"live"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	EndedAt     *time.Time `json:"endedAt,omitempty" db:"ended_at"`

	Participants []Participant `json:"participants,omitempty" db:"-"`
}

// Participant is one user's membership row in a room.
//
// LeftAt null/non-null is the membership marker: a nil LeftAt means the
// user is currently in the room. Rejoining creates a fresh row rather than
// clearing LeftAt, so the history of a session survives.
type Participant struct {
	ID       string          `json:"id"       db:"id"`
	RoomID   string          `json:"roomId"   db:"room_id"`
	UserID   string          `json:"userId"   db:"user_id"`
	Role     ParticipantRole `json:"role"     db:"role"`
	Muted    bool            `json:"muted"    db:"muted"`
	Speaking bool            `json:"speaking" db:"speaking"`
	JoinedAt time.Time       `json:"joinedAt" db:"joined_at"`
	LeftAt   *time.Time      `json:"leftAt,omitempty" db:"left_at"`

	User *User `json:"user,omitempty" db:"-"`
}

// Present reports whether the participant is currently in the room.
func (p *Participant) Present() bool {
	return p.LeftAt == nil
}
