// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// ClipStatus is the lifecycle state of a clip.
//
// Transitions are one-directional enough that feeds only ever need to
// filter on "live": a clip that becomes hidden or deleted never comes back,
// so removing it from a live-only view is always safe.
type ClipStatus string

const (
	ClipStatusDraft      ClipStatus = "draft"
	ClipStatusProcessing ClipStatus = "processing"
	ClipStatusLive       ClipStatus = "live"
	ClipStatusHidden     ClipStatus = "hidden"
	ClipStatusPrivate    ClipStatus = "private"
	ClipStatusDeleted    ClipStatus = "deleted"
)

// Clip represents an audio post.
//
// Reactions is a map keyed by emoji ("🔥" → 12). It's stored as a JSON
// column in SQLite — reaction counts are denormalized server state, never
// computed client-side.
//
// ParentID links reply clips to the clip they answer. An empty ParentID
// means a top-level post. Replies are single-level: a reply's parent is
// always a top-level clip.
type Clip struct {
	ID            string         `json:"id"            db:"id"`
	AuthorID      string         `json:"authorId"      db:"author_id"`
	AudioURL      string         `json:"audioUrl"      db:"audio_url"`
	Mood          string         `json:"mood"          db:"mood"`
	Duration      int            `json:"duration"      db:"duration"` // seconds
	Transcript    string         `json:"transcript"    db:"transcript"`
	Summary       string         `json:"summary"       db:"summary"`
	Status        ClipStatus     `json:"status"        db:"status"`
	Reactions     map[string]int `json:"reactions"     db:"reactions"`
	ListenCount   int            `json:"listenCount"   db:"listen_count"`
	ScheduledAt   *time.Time     `json:"scheduledAt,omitempty" db:"scheduled_at"`
	ContentRated  bool           `json:"contentRated"  db:"content_rated"`
	ParentID      string         `json:"parentId,omitempty" db:"parent_id"`
	CreatedAt     time.Time      `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time      `json:"updatedAt"     db:"updated_at"`

	// Author is the joined author profile. Composed reads fill it in;
	// raw change-feed payloads do not, which is why incremental sync
	// re-fetches the composed record instead of trusting the event row.
	Author *User `json:"author,omitempty" db:"-"`
}

// IsVisible reports whether the clip should appear in public feeds.
func (c *Clip) IsVisible() bool {
	return c.Status == ClipStatusLive
}
