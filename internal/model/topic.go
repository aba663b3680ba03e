package model

import "time"

// Topic is a discussion thread scoped to a date or a community.
//
// Exactly one of Date/CommunityID is normally set: daily topics use Date
// ("2026-08-31"), community threads use CommunityID. Nothing enforces
// exclusivity at the schema level — the service treats Date as the primary
// scope when both are present.
type Topic struct {
	ID          string    `json:"id"          db:"id"`
	Title       string    `json:"title"       db:"title"`
	Date        string    `json:"date,omitempty"        db:"date"`
	CommunityID string    `json:"communityId,omitempty" db:"community_id"`
	AuthorID    string    `json:"authorId"    db:"author_id"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`

	Comments []Comment `json:"comments,omitempty" db:"-"`
}

// Comment is a post inside a topic.
//
// Replies are single-level: ParentID points at a top-level comment, and a
// reply can never itself be replied to. Question/Answered support Q&A-style
// topics where the author marks one thread as resolved.
type Comment struct {
	ID        string    `json:"id"        db:"id"`
	TopicID   string    `json:"topicId"   db:"topic_id"`
	AuthorID  string    `json:"authorId"  db:"author_id"`
	Body      string    `json:"body"      db:"body"`
	ParentID  string    `json:"parentId,omitempty" db:"parent_id"`
	Upvotes   int       `json:"upvotes"   db:"upvotes"`
	Question  bool      `json:"question"  db:"question"`
	Answered  bool      `json:"answered"  db:"answered"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Author  *User     `json:"author,omitempty"  db:"-"`
	Replies []Comment `json:"replies,omitempty" db:"-"`
}
