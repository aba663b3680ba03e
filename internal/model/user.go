package model

import "time"

// User represents a creator/listener profile.
//
// Identity is deliberately lightweight: accounts are created on first PIN
// login from a device, so Handle is the only required public field. GitHub
// OAuth is an optional second identity — GitHubID is 0 for accounts that
// never linked one. We generate our own xid primary keys rather than tying
// them to any third-party numbering scheme.
//
// PINHash is the bcrypt hash of the user's login PIN. It is never
// serialized to JSON — the `json:"-"` tag keeps it out of every API
// response, including composed reads that join author profiles.
type User struct {
	ID        string    `json:"id"        db:"id"`
	Handle    string    `json:"handle"    db:"handle"`
	Name      string    `json:"name"      db:"name"`
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"`
	Bio       string    `json:"bio"       db:"bio"`
	PINHash   string    `json:"-"         db:"pin_hash"`
	GitHubID  int64     `json:"-"         db:"github_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// LoginLink is a single-use, expiring token that signs a user in without a
// PIN — the "magic link" flow. Redeeming marks UsedAt; a link with a
// non-nil UsedAt or a past ExpiresAt is rejected.
type LoginLink struct {
	Token     string     `json:"token"     db:"token"`
	UserID    string     `json:"userId"    db:"user_id"`
	ExpiresAt time.Time  `json:"expiresAt" db:"expires_at"`
	UsedAt    *time.Time `json:"usedAt,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}
