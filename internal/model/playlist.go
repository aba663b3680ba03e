package model

import "time"

// CollaboratorRole is the permission level of a playlist collaborator.
type CollaboratorRole string

const (
	RoleOwner  CollaboratorRole = "owner"
	RoleEditor CollaboratorRole = "editor"
)

// Playlist is a named, ordered collection of clip references.
//
// ShareToken is an opaque secondary key: a public playlist can be loaded by
// its token instead of its primary id, which is how share links work without
// exposing internal ids. Empty means the playlist has never been shared.
type Playlist struct {
	ID         string    `json:"id"         db:"id"`
	Name       string    `json:"name"       db:"name"`
	OwnerID    string    `json:"ownerId"    db:"owner_id"`
	Public     bool      `json:"public"     db:"public"`
	ShareToken string    `json:"shareToken,omitempty" db:"share_token"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt"  db:"updated_at"`

	// Joined relations, filled by composed reads only.
	Clips         []PlaylistClip `json:"clips,omitempty"         db:"-"`
	Collaborators []Collaborator `json:"collaborators,omitempty" db:"-"`
}

// PlaylistClip is one entry in a playlist.
//
// Position values are dense and unique within a playlist (0..n-1).
// Every removal compacts the remaining positions so the invariant holds.
type PlaylistClip struct {
	ID         string    `json:"id"         db:"id"`
	PlaylistID string    `json:"playlistId" db:"playlist_id"`
	ClipID     string    `json:"clipId"     db:"clip_id"`
	Position   int       `json:"position"   db:"position"`
	AddedBy    string    `json:"addedBy"    db:"added_by"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`

	// Clip is the joined clip record (composed reads only).
	Clip *Clip `json:"clip,omitempty" db:"-"`
}

// Collaborator ties a user to a playlist with a role.
type Collaborator struct {
	PlaylistID string           `json:"playlistId" db:"playlist_id"`
	UserID     string           `json:"userId"     db:"user_id"`
	Role       CollaboratorRole `json:"role"       db:"role"`
	CreatedAt  time.Time        `json:"createdAt"  db:"created_at"`

	User *User `json:"user,omitempty" db:"-"`
}
