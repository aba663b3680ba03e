package model

import "time"

// Community is a named group of users. Rooms and topics can be scoped to a
// community; membership is what the room join gate checks.
type Community struct {
	ID          string    `json:"id"          db:"id"`
	Name        string    `json:"name"        db:"name"`
	Description string    `json:"description" db:"description"`
	MemberCount int       `json:"memberCount" db:"member_count"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}

// Membership ties a user to a community.
type Membership struct {
	CommunityID string    `json:"communityId" db:"community_id"`
	UserID      string    `json:"userId"      db:"user_id"`
	JoinedAt    time.Time `json:"joinedAt"    db:"joined_at"`
}
