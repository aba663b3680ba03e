package model

// CreatorStats is an aggregate row for the analytics dashboard and the
// top-creators leaderboard. Computed from live clips only — hidden and
// deleted clips stop counting the moment they leave the feed.
type CreatorStats struct {
	UserID       string `json:"userId"       db:"user_id"`
	Handle       string `json:"handle"       db:"handle"`
	Name         string `json:"name"         db:"name"`
	AvatarURL    string `json:"avatarUrl"    db:"avatar_url"`
	ClipCount    int    `json:"clipCount"    db:"clip_count"`
	TotalListens int    `json:"totalListens" db:"total_listens"`
}
