// Package repository defines the storage interfaces consumed by the service
// layer. Concrete implementations live in subpackages (sqlite for durable
// entities, redispresence for live-room state) — services only ever see
// these interfaces, which is what lets tests swap in in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/waveroom/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ClipRepository stores audio posts and the per-user saved list.
//
// GetByID returns a composed record: the clip plus its joined author
// profile. Change-feed consumers rely on this — raw feed events carry only
// the clip row, so incremental sync re-fetches through here.
type ClipRepository interface {
	Create(ctx context.Context, clip *model.Clip) error
	GetByID(ctx context.Context, id string) (*model.Clip, error)
	ListFeed(ctx context.Context, opts ListOptions) ([]model.Clip, error)
	ListByAuthors(ctx context.Context, authorIDs []string, opts ListOptions) ([]model.Clip, error)
	ListReplies(ctx context.Context, parentID string) ([]model.Clip, error)
	Update(ctx context.Context, clip *model.Clip) error
	SetStatus(ctx context.Context, id string, status model.ClipStatus) error
	ListScheduledDue(ctx context.Context, now time.Time) ([]model.Clip, error)
	Anonymize(ctx context.Context, id string) error
	AddReaction(ctx context.Context, id, emoji string) error
	IncrementListens(ctx context.Context, id string) error

	Save(ctx context.Context, userID, clipID string) error
	Unsave(ctx context.Context, userID, clipID string) error
	ListSaved(ctx context.Context, userID string) ([]model.Clip, error)
}

// PlaylistRepository stores playlists, their ordered entries, and the
// collaborator roster. Positions are dense (0..n-1) within a playlist;
// RemoveClip compacts them.
type PlaylistRepository interface {
	Create(ctx context.Context, playlist *model.Playlist) error
	GetByID(ctx context.Context, id string) (*model.Playlist, error)
	GetByShareToken(ctx context.Context, token string) (*model.Playlist, error)
	Update(ctx context.Context, playlist *model.Playlist) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]model.Playlist, error)

	AddClip(ctx context.Context, entry *model.PlaylistClip) error
	GetEntry(ctx context.Context, entryID string) (*model.PlaylistClip, error)
	RemoveClip(ctx context.Context, playlistID, clipID string) error
	Reorder(ctx context.Context, playlistID string, orderedClipIDs []string) error

	Collaborators(ctx context.Context, playlistID string) ([]model.Collaborator, error)
	AddCollaborator(ctx context.Context, c *model.Collaborator) error
	RemoveCollaborator(ctx context.Context, playlistID, userID string) error
}

// RoomRepository is the durable mirror of room and participant rows.
// Live presence (who is in the room right now) is the RoomPresence
// interface below; this one keeps the history, including left_at.
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) error
	GetByID(ctx context.Context, id string) (*model.Room, error)
	ListLive(ctx context.Context, opts ListOptions) ([]model.Room, error)
	End(ctx context.Context, id string) error

	AddParticipant(ctx context.Context, p *model.Participant) error
	GetParticipant(ctx context.Context, id string) (*model.Participant, error)
	FindPresent(ctx context.Context, roomID, userID string) (*model.Participant, error)
	UpdateParticipant(ctx context.Context, p *model.Participant) error
	MarkLeft(ctx context.Context, participantID string, at time.Time) error
}

// RoomPresence is the ephemeral, TTL-bound view of who is in a room.
// Backed by Redis in production; entries expire if the room dies without a
// clean shutdown.
type RoomPresence interface {
	Join(ctx context.Context, roomID string, p model.Participant, ttl time.Duration) error
	Leave(ctx context.Context, roomID, userID string) error
	List(ctx context.Context, roomID string) ([]model.Participant, error)
	SetFlags(ctx context.Context, roomID, userID string, muted, speaking bool) error
	Touch(ctx context.Context, roomID string, ttl time.Duration) error
	Clear(ctx context.Context, roomID string) error
}

// TopicRepository stores discussion threads and their comments.
type TopicRepository interface {
	Create(ctx context.Context, topic *model.Topic) error
	GetByID(ctx context.Context, id string) (*model.Topic, error)
	GetByDate(ctx context.Context, date string) (*model.Topic, error)
	ListByCommunity(ctx context.Context, communityID string, opts ListOptions) ([]model.Topic, error)

	AddComment(ctx context.Context, c *model.Comment) error
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	Upvote(ctx context.Context, commentID string) error
	MarkAnswered(ctx context.Context, commentID string) error
}

// DiaryRepository stores opaque ciphertext rows. The server side never
// inspects Ciphertext — it is a blob with a nonce and salt attached.
type DiaryRepository interface {
	Create(ctx context.Context, entry *model.DiaryEntry) error
	GetByID(ctx context.Context, id string) (*model.DiaryEntry, error)
	ListByUser(ctx context.Context, userID string) ([]model.DiaryEntry, error)
	Update(ctx context.Context, entry *model.DiaryEntry) error
	Delete(ctx context.Context, id string) error
}

// CommunityRepository stores communities and memberships.
type CommunityRepository interface {
	Create(ctx context.Context, c *model.Community) error
	GetByID(ctx context.Context, id string) (*model.Community, error)
	List(ctx context.Context, opts ListOptions) ([]model.Community, error)
	Join(ctx context.Context, communityID, userID string) error
	Leave(ctx context.Context, communityID, userID string) error
	IsMember(ctx context.Context, communityID, userID string) (bool, error)
}

// UserRepository stores profiles, follow edges, and login links.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByHandle(ctx context.Context, handle string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error

	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	Following(ctx context.Context, followerID string) ([]string, error)

	CreateLoginLink(ctx context.Context, link *model.LoginLink) error
	GetLoginLink(ctx context.Context, token string) (*model.LoginLink, error)
	MarkLinkUsed(ctx context.Context, token string, at time.Time) error
}

// AnalyticsRepository answers the leaderboard/dashboard queries. Kept
// separate from ClipRepository because it only aggregates — it never
// mutates anything.
type AnalyticsRepository interface {
	TopCreators(ctx context.Context, limit int) ([]model.CreatorStats, error)
	CreatorStats(ctx context.Context, userID string) (*model.CreatorStats, error)
}
