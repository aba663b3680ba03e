// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
// In a well-structured Go web app, code is organised into three layers:
//
//   Handler (HTTP layer)    → parses requests, writes responses
//   Service (Business layer) → validates, enforces rules, orchestrates
//   Repository (Data layer) → reads/writes to the database
//
// WHY A SEPARATE SERVICE LAYER?
// Without a service layer, handlers do everything: parse HTTP, validate data,
// call the database, format responses. This creates several problems:
//
//   1. TESTING: To test business logic, you'd need to create HTTP requests.
//      With a service layer, you test business logic with plain Go function calls.
//
//   2. REUSE: What if you need the same logic in a CLI tool or a background job?
//      Handlers are tied to HTTP. Services are not.
//
//   3. SEPARATION: Handlers should only know about HTTP (status codes, headers, JSON).
//      Services should only know about business rules (validation, permissions).
//      Neither should know about SQL or database details.
//
// THE DEPENDENCY CHAIN:
//   main.go creates:  DB → Repository → Service → Handler
//   At runtime:       Handler calls Service calls Repository calls DB
//
// CHANGE-FEED PUBLISHING:
// Every service mutation that succeeds also publishes a realtime.Event so
// subscribed views converge without polling. Publishing happens here, not in
// the repositories, because only the service knows when a logical operation
// is complete (some span several repo calls).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/realtime"
	"github.com/sakif/waveroom/internal/repository"
)

// Validation constants.
const (
	MaxMoodLength       = 40
	MaxTranscriptLength = 20000
	MaxClipDuration     = 600 // seconds
	DefaultListLimit    = 20
	MaxListLimit        = 100
)

// ClipService handles business logic for audio clips: feeds, the clip
// lifecycle, reactions, listens, and the per-user saved list.
type ClipService struct {
	clips  repository.ClipRepository
	users  repository.UserRepository
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewClipService(
	clips repository.ClipRepository,
	users repository.UserRepository,
	hub *realtime.Hub,
	logger *slog.Logger,
) *ClipService {
	return &ClipService{
		clips:  clips,
		users:  users,
		hub:    hub,
		logger: logger,
	}
}

// CreateClipInput carries the fields a creator controls when posting.
type CreateClipInput struct {
	AudioURL     string
	Mood         string
	Duration     int
	Transcript   string
	Summary      string
	ScheduledAt  *time.Time
	ContentRated bool
	ParentID     string
}

// CanSchedulePost reports whether at is an acceptable scheduling time.
// Past timestamps are rejected inline at validation time — a post cannot
// be scheduled for a moment that has already happened.
func CanSchedulePost(at time.Time, now time.Time) bool {
	return !at.Before(now)
}

// Create validates and saves a new clip. A clip with a ScheduledAt goes in
// as a draft to be published later; everything else goes live immediately.
func (s *ClipService) Create(ctx context.Context, authorID string, in CreateClipInput) (*model.Clip, error) {
	if strings.TrimSpace(in.AudioURL) == "" {
		return nil, apperror.ValidationFailed("audioUrl", "a clip needs an audio recording")
	}
	if len(in.Mood) > MaxMoodLength {
		return nil, apperror.ValidationFailed("mood",
			fmt.Sprintf("mood must be %d characters or less", MaxMoodLength))
	}
	if len(in.Transcript) > MaxTranscriptLength {
		return nil, apperror.ValidationFailed("transcript",
			fmt.Sprintf("transcript must be %d characters or less", MaxTranscriptLength))
	}
	if in.Duration <= 0 || in.Duration > MaxClipDuration {
		return nil, apperror.ValidationFailed("duration",
			fmt.Sprintf("duration must be between 1 and %d seconds", MaxClipDuration))
	}
	if in.ScheduledAt != nil && !CanSchedulePost(*in.ScheduledAt, time.Now()) {
		return nil, apperror.ValidationFailed("scheduledAt", "scheduled time must be in the future")
	}

	if in.ParentID != "" {
		parent, err := s.clips.GetByID(ctx, in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.ParentID != "" {
			// Replies are single-level; answering a reply attaches to its
			// top-level parent instead.
			in.ParentID = parent.ParentID
		}
	}

	status := model.ClipStatusLive
	if in.ScheduledAt != nil {
		status = model.ClipStatusDraft
	}

	clip := &model.Clip{
		AuthorID:     authorID,
		AudioURL:     strings.TrimSpace(in.AudioURL),
		Mood:         strings.TrimSpace(in.Mood),
		Duration:     in.Duration,
		Transcript:   in.Transcript,
		Summary:      strings.TrimSpace(in.Summary),
		Status:       status,
		Reactions:    map[string]int{},
		ScheduledAt:  in.ScheduledAt,
		ContentRated: in.ContentRated,
		ParentID:     in.ParentID,
	}

	if err := s.clips.Create(ctx, clip); err != nil {
		s.logger.Error("failed to create clip",
			slog.String("authorID", authorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating clip: %w", err)
	}

	s.logger.Info("clip created",
		slog.String("id", clip.ID),
		slog.String("authorID", clip.AuthorID),
		slog.String("status", string(clip.Status)),
	)

	s.publish(realtime.ActionInsert, clip)
	return clip, nil
}

// GetByID retrieves a clip with its joined author profile.
func (s *ClipService) GetByID(ctx context.Context, id string) (*model.Clip, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "clip ID is required")
	}
	return s.clips.GetByID(ctx, id)
}

// Feed returns the public feed: live clips, newest first.
func (s *ClipService) Feed(ctx context.Context, limit, offset int) ([]model.Clip, error) {
	clips, err := s.clips.ListFeed(ctx, clampOpts(limit, offset))
	if err != nil {
		s.logger.Error("failed to list feed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing feed: %w", err)
	}
	return clips, nil
}

// FollowingFeed returns live clips from the authors the user follows.
// A user following nobody gets an empty feed, not an error.
func (s *ClipService) FollowingFeed(ctx context.Context, userID string, limit, offset int) ([]model.Clip, error) {
	authorIDs, err := s.users.Following(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing followed authors: %w", err)
	}
	if len(authorIDs) == 0 {
		return []model.Clip{}, nil
	}

	clips, err := s.clips.ListByAuthors(ctx, authorIDs, clampOpts(limit, offset))
	if err != nil {
		s.logger.Error("failed to list following feed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing following feed: %w", err)
	}
	return clips, nil
}

// Replies returns the reply clips under a top-level clip, oldest first.
func (s *ClipService) Replies(ctx context.Context, parentID string) ([]model.Clip, error) {
	if strings.TrimSpace(parentID) == "" {
		return nil, apperror.ValidationFailed("parentId", "parent clip ID is required")
	}
	return s.clips.ListReplies(ctx, parentID)
}

// Hide takes a live clip out of public feeds. Only the author may hide,
// and only a live clip can be hidden — the lifecycle never runs backwards.
func (s *ClipService) Hide(ctx context.Context, clipID, callerID string) error {
	clip, err := s.ownedClip(ctx, clipID, callerID)
	if err != nil {
		return err
	}
	if clip.Status != model.ClipStatusLive {
		return apperror.ValidationFailed("status",
			fmt.Sprintf("cannot hide a clip in status %q", clip.Status))
	}

	if err := s.clips.SetStatus(ctx, clipID, model.ClipStatusHidden); err != nil {
		return err
	}

	s.logger.Info("clip hidden", slog.String("id", clipID))
	clip.Status = model.ClipStatusHidden
	s.publish(realtime.ActionUpdate, clip)
	return nil
}

// MakePrivate pulls a live clip back to author-only visibility. Same
// precondition as Hide: only a live clip can go private, the lifecycle
// never runs backwards.
func (s *ClipService) MakePrivate(ctx context.Context, clipID, callerID string) error {
	clip, err := s.ownedClip(ctx, clipID, callerID)
	if err != nil {
		return err
	}
	if clip.Status != model.ClipStatusLive {
		return apperror.ValidationFailed("status",
			fmt.Sprintf("cannot make a clip private in status %q", clip.Status))
	}

	if err := s.clips.SetStatus(ctx, clipID, model.ClipStatusPrivate); err != nil {
		return err
	}

	s.logger.Info("clip made private", slog.String("id", clipID))
	clip.Status = model.ClipStatusPrivate
	s.publish(realtime.ActionUpdate, clip)
	return nil
}

// PublishDue flips scheduled drafts whose time has arrived to live and
// announces each one on the change feed. The server runs this on a
// timer; a flip that fails is logged and retried on the next sweep.
func (s *ClipService) PublishDue(ctx context.Context, now time.Time) error {
	due, err := s.clips.ListScheduledDue(ctx, now)
	if err != nil {
		return fmt.Errorf("listing due scheduled clips: %w", err)
	}

	for i := range due {
		clip := &due[i]
		if err := s.clips.SetStatus(ctx, clip.ID, model.ClipStatusLive); err != nil {
			s.logger.Error("failed to publish scheduled clip",
				slog.String("id", clip.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.logger.Info("scheduled clip published", slog.String("id", clip.ID))
		clip.Status = model.ClipStatusLive
		s.publish(realtime.ActionUpdate, clip)
	}
	return nil
}

// Anonymize strips the author from a clip but leaves the audio up. This is
// irreversible: the author link is deleted, not flagged.
func (s *ClipService) Anonymize(ctx context.Context, clipID, callerID string) error {
	clip, err := s.ownedClip(ctx, clipID, callerID)
	if err != nil {
		return err
	}
	if clip.Status == model.ClipStatusDeleted {
		return apperror.ValidationFailed("status", "cannot anonymize a deleted clip")
	}

	if err := s.clips.Anonymize(ctx, clipID); err != nil {
		return err
	}

	s.logger.Info("clip anonymized", slog.String("id", clipID))
	clip.AuthorID = ""
	clip.Author = nil
	s.publish(realtime.ActionUpdate, clip)
	return nil
}

// Delete marks the clip deleted. The row stays (replies and playlist
// entries keep a tombstone to point at) but it leaves every feed and the
// status never changes again.
func (s *ClipService) Delete(ctx context.Context, clipID, callerID string) error {
	clip, err := s.ownedClip(ctx, clipID, callerID)
	if err != nil {
		return err
	}
	if clip.Status == model.ClipStatusDeleted {
		return nil // already deleted; idempotent
	}

	if err := s.clips.SetStatus(ctx, clipID, model.ClipStatusDeleted); err != nil {
		return err
	}

	s.logger.Info("clip deleted", slog.String("id", clipID))
	s.hub.Publish(realtime.Event{
		Action: realtime.ActionDelete,
		Table:  "clips",
		ID:     clipID,
	})
	return nil
}

// React increments the count for one emoji on the clip.
func (s *ClipService) React(ctx context.Context, clipID, emoji string) (*model.Clip, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, apperror.ValidationFailed("emoji", "reaction emoji is required")
	}

	if err := s.clips.AddReaction(ctx, clipID, emoji); err != nil {
		return nil, err
	}

	clip, err := s.clips.GetByID(ctx, clipID)
	if err != nil {
		return nil, err
	}
	s.publish(realtime.ActionUpdate, clip)
	return clip, nil
}

// RecordListen bumps the listen counter. Fire-and-forget semantics at the
// API level: the caller does not get the new count back.
func (s *ClipService) RecordListen(ctx context.Context, clipID string) error {
	if err := s.clips.IncrementListens(ctx, clipID); err != nil {
		return err
	}

	clip, err := s.clips.GetByID(ctx, clipID)
	if err == nil {
		s.publish(realtime.ActionUpdate, clip)
	}
	return nil
}

// Save adds the clip to the user's saved list. Idempotent.
func (s *ClipService) Save(ctx context.Context, userID, clipID string) error {
	clip, err := s.clips.GetByID(ctx, clipID)
	if err != nil {
		return err
	}
	if !clip.IsVisible() {
		return apperror.ValidationFailed("clipId", "only live clips can be saved")
	}
	return s.clips.Save(ctx, userID, clipID)
}

// Unsave removes the clip from the user's saved list.
func (s *ClipService) Unsave(ctx context.Context, userID, clipID string) error {
	return s.clips.Unsave(ctx, userID, clipID)
}

// Saved returns the user's saved clips. Clips that went hidden or deleted
// after being saved are filtered out by the repository.
func (s *ClipService) Saved(ctx context.Context, userID string) ([]model.Clip, error) {
	return s.clips.ListSaved(ctx, userID)
}

// ownedClip loads the clip and checks the caller is its author.
func (s *ClipService) ownedClip(ctx context.Context, clipID, callerID string) (*model.Clip, error) {
	clip, err := s.clips.GetByID(ctx, clipID)
	if err != nil {
		return nil, err
	}
	if clip.AuthorID != callerID {
		return nil, apperror.Forbidden("only the author can modify this clip")
	}
	return clip, nil
}

// publish emits a change-feed event for the clip, carrying the columns
// subscribers filter on.
func (s *ClipService) publish(action realtime.Action, clip *model.Clip) {
	s.hub.Publish(realtime.Event{
		Action: action,
		Table:  "clips",
		ID:     clip.ID,
		Values: map[string]any{
			"status":    string(clip.Status),
			"author_id": clip.AuthorID,
			"parent_id": clip.ParentID,
		},
	})
}

// clampOpts normalizes pagination the same way across every service.
func clampOpts(limit, offset int) repository.ListOptions {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return repository.ListOptions{Limit: limit, Offset: offset}
}
