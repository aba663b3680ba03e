package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/idgen"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/realtime"
	"github.com/sakif/waveroom/internal/repository"
)

const MaxPlaylistNameLength = 120

// shareKeyMinLength separates primary ids from share tokens on lookup.
// Internal ids are 20-char xids; share tokens are ULIDs padded with a
// prefix, always 36+ characters. A lookup key at least this long is
// treated as a share token first.
const shareKeyMinLength = 36

// PlaylistService handles playlists, their ordered entries, and
// collaborator management.
type PlaylistService struct {
	playlists repository.PlaylistRepository
	clips     repository.ClipRepository
	hub       *realtime.Hub
	logger    *slog.Logger
}

func NewPlaylistService(
	playlists repository.PlaylistRepository,
	clips repository.ClipRepository,
	hub *realtime.Hub,
	logger *slog.Logger,
) *PlaylistService {
	return &PlaylistService{
		playlists: playlists,
		clips:     clips,
		hub:       hub,
		logger:    logger,
	}
}

// Create makes a new playlist owned by ownerID. The repository adds the
// owner as a collaborator with the owner role.
func (s *PlaylistService) Create(ctx context.Context, ownerID, name string, public bool) (*model.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "playlist name is required")
	}
	if len(name) > MaxPlaylistNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("playlist name must be %d characters or less", MaxPlaylistNameLength))
	}

	playlist := &model.Playlist{
		Name:    name,
		OwnerID: ownerID,
		Public:  public,
	}
	if err := s.playlists.Create(ctx, playlist); err != nil {
		s.logger.Error("failed to create playlist",
			slog.String("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating playlist: %w", err)
	}

	s.logger.Info("playlist created",
		slog.String("id", playlist.ID),
		slog.String("ownerID", ownerID),
	)

	s.publish(realtime.ActionInsert, playlist)
	return playlist, nil
}

// Get loads a composed playlist by key. A key of share-token length is
// looked up as a share token first, falling back to a primary-id lookup;
// shorter keys go straight to the id lookup. This is what makes a pasted
// share link and an internal navigation hit the same endpoint.
//
// callerID may be empty (anonymous). A private playlist resolved by id is
// only visible to its owner and collaborators; everyone else gets
// NotFound so the response never confirms the id exists. Share tokens
// only resolve public playlists, so that path needs no caller check.
func (s *PlaylistService) Get(ctx context.Context, key, callerID string) (*model.Playlist, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperror.ValidationFailed("id", "playlist key is required")
	}

	if len(key) >= shareKeyMinLength {
		playlist, err := s.playlists.GetByShareToken(ctx, key)
		if err == nil {
			return playlist, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
	}

	playlist, err := s.playlists.GetByID(ctx, key)
	if err != nil {
		return nil, err
	}
	if !playlist.Public && !canViewPlaylist(playlist, callerID) {
		return nil, apperror.NotFound("playlist", key)
	}
	return playlist, nil
}

func canViewPlaylist(p *model.Playlist, callerID string) bool {
	if callerID == "" {
		return false
	}
	if p.OwnerID == callerID {
		return true
	}
	for _, c := range p.Collaborators {
		if c.UserID == callerID {
			return true
		}
	}
	return false
}

// Share marks the playlist public and mints its share token if it never
// had one. Sharing twice returns the same token.
func (s *PlaylistService) Share(ctx context.Context, playlistID, callerID string) (string, error) {
	playlist, err := s.editablePlaylist(ctx, playlistID, callerID)
	if err != nil {
		return "", err
	}

	if playlist.ShareToken == "" {
		playlist.ShareToken = newShareToken()
	}
	playlist.Public = true

	if err := s.playlists.Update(ctx, playlist); err != nil {
		return "", fmt.Errorf("sharing playlist: %w", err)
	}

	s.logger.Info("playlist shared", slog.String("id", playlist.ID))
	s.publish(realtime.ActionUpdate, playlist)
	return playlist.ShareToken, nil
}

// Rename updates the playlist name.
func (s *PlaylistService) Rename(ctx context.Context, playlistID, callerID, name string) (*model.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "playlist name is required")
	}
	if len(name) > MaxPlaylistNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("playlist name must be %d characters or less", MaxPlaylistNameLength))
	}

	playlist, err := s.editablePlaylist(ctx, playlistID, callerID)
	if err != nil {
		return nil, err
	}
	playlist.Name = name

	if err := s.playlists.Update(ctx, playlist); err != nil {
		return nil, fmt.Errorf("renaming playlist: %w", err)
	}

	s.publish(realtime.ActionUpdate, playlist)
	return playlist, nil
}

// Delete removes the playlist entirely.
func (s *PlaylistService) Delete(ctx context.Context, playlistID, callerID string) error {
	playlist, err := s.playlists.GetByID(ctx, playlistID)
	if err != nil {
		return err
	}
	if playlist.OwnerID != callerID {
		return apperror.Forbidden("only the owner can delete a playlist")
	}

	if err := s.playlists.Delete(ctx, playlistID); err != nil {
		return err
	}

	s.logger.Info("playlist deleted", slog.String("id", playlistID))
	s.hub.Publish(realtime.Event{
		Action: realtime.ActionDelete,
		Table:  "playlists",
		ID:     playlistID,
	})
	return nil
}

// ListMine returns the playlists the user owns or collaborates on.
func (s *PlaylistService) ListMine(ctx context.Context, userID string) ([]model.Playlist, error) {
	return s.playlists.ListByUser(ctx, userID)
}

// AddClip appends a live clip to the end of the playlist.
func (s *PlaylistService) AddClip(ctx context.Context, playlistID, clipID, callerID string) (*model.PlaylistClip, error) {
	if _, err := s.editablePlaylist(ctx, playlistID, callerID); err != nil {
		return nil, err
	}

	clip, err := s.clips.GetByID(ctx, clipID)
	if err != nil {
		return nil, err
	}
	if !clip.IsVisible() {
		return nil, apperror.ValidationFailed("clipId", "only live clips can be added to a playlist")
	}

	entry := &model.PlaylistClip{
		PlaylistID: playlistID,
		ClipID:     clipID,
		AddedBy:    callerID,
	}
	if err := s.playlists.AddClip(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("clip added to playlist",
		slog.String("playlistID", playlistID),
		slog.String("clipID", clipID),
	)
	s.publishEntry(realtime.ActionInsert, entry)
	return entry, nil
}

// RemoveClip deletes the entry and compacts the remaining positions so
// they stay dense (0..n-1).
func (s *PlaylistService) RemoveClip(ctx context.Context, playlistID, clipID, callerID string) error {
	playlist, err := s.editablePlaylist(ctx, playlistID, callerID)
	if err != nil {
		return err
	}

	// The delete must announce the same id the insert did (the entry row
	// id, not the clip id), or subscribed views never drop the entry.
	var entry *model.PlaylistClip
	for i := range playlist.Clips {
		if playlist.Clips[i].ClipID == clipID {
			entry = &playlist.Clips[i]
			break
		}
	}
	if entry == nil {
		return apperror.NotFound("playlist entry", clipID)
	}

	if err := s.playlists.RemoveClip(ctx, playlistID, clipID); err != nil {
		return err
	}

	s.publishEntry(realtime.ActionDelete, entry)
	return nil
}

// Reorder rewrites the playlist to the given clip order. The order must
// mention exactly the clips currently in the playlist.
func (s *PlaylistService) Reorder(ctx context.Context, playlistID, callerID string, orderedClipIDs []string) error {
	playlist, err := s.editablePlaylist(ctx, playlistID, callerID)
	if err != nil {
		return err
	}

	if len(orderedClipIDs) != len(playlist.Clips) {
		return apperror.ValidationFailed("order",
			fmt.Sprintf("order lists %d clips, playlist has %d", len(orderedClipIDs), len(playlist.Clips)))
	}
	current := make(map[string]bool, len(playlist.Clips))
	for _, e := range playlist.Clips {
		current[e.ClipID] = true
	}
	for _, id := range orderedClipIDs {
		if !current[id] {
			return apperror.ValidationFailed("order",
				fmt.Sprintf("clip %s is not in the playlist", id))
		}
		delete(current, id)
	}

	if err := s.playlists.Reorder(ctx, playlistID, orderedClipIDs); err != nil {
		return err
	}

	s.publish(realtime.ActionUpdate, playlist)
	return nil
}

// Collaborators returns the playlist's collaborator roster. The key and
// visibility rules are Get's: share tokens resolve, private playlists
// stay hidden from outsiders.
func (s *PlaylistService) Collaborators(ctx context.Context, key, callerID string) ([]model.Collaborator, error) {
	playlist, err := s.Get(ctx, key, callerID)
	if err != nil {
		return nil, err
	}
	return playlist.Collaborators, nil
}

// AddCollaborator grants a user editor access. Only the owner can manage
// collaborators.
func (s *PlaylistService) AddCollaborator(ctx context.Context, playlistID, callerID, userID string) error {
	playlist, err := s.playlists.GetByID(ctx, playlistID)
	if err != nil {
		return err
	}
	if playlist.OwnerID != callerID {
		return apperror.Forbidden("only the owner can manage collaborators")
	}

	c := &model.Collaborator{
		PlaylistID: playlistID,
		UserID:     userID,
		Role:       model.RoleEditor,
	}
	if err := s.playlists.AddCollaborator(ctx, c); err != nil {
		return err
	}

	s.logger.Info("collaborator added",
		slog.String("playlistID", playlistID),
		slog.String("userID", userID),
	)
	s.publish(realtime.ActionUpdate, playlist)
	return nil
}

// RemoveCollaborator revokes a user's access. The owner row can never be
// removed.
func (s *PlaylistService) RemoveCollaborator(ctx context.Context, playlistID, callerID, userID string) error {
	playlist, err := s.playlists.GetByID(ctx, playlistID)
	if err != nil {
		return err
	}
	if playlist.OwnerID != callerID {
		return apperror.Forbidden("only the owner can manage collaborators")
	}
	if userID == playlist.OwnerID {
		return apperror.ValidationFailed("userId", "the owner cannot be removed")
	}

	if err := s.playlists.RemoveCollaborator(ctx, playlistID, userID); err != nil {
		return err
	}
	s.publish(realtime.ActionUpdate, playlist)
	return nil
}

// editablePlaylist loads the composed playlist and verifies the caller is
// the owner or a collaborator.
func (s *PlaylistService) editablePlaylist(ctx context.Context, playlistID, callerID string) (*model.Playlist, error) {
	playlist, err := s.playlists.GetByID(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if playlist.OwnerID == callerID {
		return playlist, nil
	}
	for _, c := range playlist.Collaborators {
		if c.UserID == callerID {
			return playlist, nil
		}
	}
	return nil, apperror.Forbidden("you do not have access to this playlist")
}

func (s *PlaylistService) publish(action realtime.Action, playlist *model.Playlist) {
	s.hub.Publish(realtime.Event{
		Action: action,
		Table:  "playlists",
		ID:     playlist.ID,
		Values: map[string]any{
			"owner_id": playlist.OwnerID,
			"public":   playlist.Public,
		},
	})
}

func (s *PlaylistService) publishEntry(action realtime.Action, entry *model.PlaylistClip) {
	s.hub.Publish(realtime.Event{
		Action: action,
		Table:  "playlist_clips",
		ID:     entry.ID,
		Values: map[string]any{
			"playlist_id": entry.PlaylistID,
			"clip_id":     entry.ClipID,
		},
	})
}

// newShareToken mints an opaque share token: a fixed prefix plus a ULID.
// The prefix makes tokens recognizably not internal ids, and together they
// clear the length threshold Get uses to route lookups.
func newShareToken() string {
	return "pl_share_" + idgen.NewULID()
}
