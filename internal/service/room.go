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

const (
	MaxRoomTitleLength = 140

	// PresenceTTL is the Redis lease on a participant. Clients heartbeat
	// well inside it; a participant whose lease lapses has crashed or lost
	// connectivity and silently drops from the live roster.
	PresenceTTL = 90 * time.Second
)

// RoomService handles live audio rooms: the durable mirror in SQLite, the
// TTL-bound presence set in Redis, and the roster events on the change-feed.
//
// Audio transport is out of scope here. The service manages who is in the
// room and with what role/flags; how media actually flows between
// participants is unresolved and deliberately not guessed at.
type RoomService struct {
	rooms       repository.RoomRepository
	presence    repository.RoomPresence
	communities repository.CommunityRepository
	hub         *realtime.Hub
	logger      *slog.Logger
}

func NewRoomService(
	rooms repository.RoomRepository,
	presence repository.RoomPresence,
	communities repository.CommunityRepository,
	hub *realtime.Hub,
	logger *slog.Logger,
) *RoomService {
	return &RoomService{
		rooms:       rooms,
		presence:    presence,
		communities: communities,
		hub:         hub,
		logger:      logger,
	}
}

// Create opens a new live room with hostID as its host, already joined.
// A non-empty communityID gates entry to members of that community; the
// host must be a member themselves.
func (s *RoomService) Create(ctx context.Context, hostID, title, communityID string) (*model.Room, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "room title is required")
	}
	if len(title) > MaxRoomTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("room title must be %d characters or less", MaxRoomTitleLength))
	}

	if communityID != "" {
		member, err := s.communities.IsMember(ctx, communityID, hostID)
		if err != nil {
			return nil, fmt.Errorf("checking community membership: %w", err)
		}
		if !member {
			return nil, apperror.Forbidden("you must join the community before hosting a room in it")
		}
	}

	room := &model.Room{
		Title:       title,
		HostID:      hostID,
		CommunityID: communityID,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		s.logger.Error("failed to create room",
			slog.String("hostID", hostID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating room: %w", err)
	}

	host, err := s.addParticipant(ctx, room, hostID, model.RoomRoleHost)
	if err != nil {
		return nil, err
	}
	room.Participants = []model.Participant{*host}

	s.logger.Info("room created",
		slog.String("id", room.ID),
		slog.String("hostID", hostID),
		slog.String("communityID", communityID),
	)

	s.hub.Publish(realtime.Event{
		Action: realtime.ActionInsert,
		Table:  "rooms",
		ID:     room.ID,
		Values: map[string]any{"live": true, "community_id": communityID},
	})
	return room, nil
}

// Get returns the composed room: its row plus the present participants.
func (s *RoomService) Get(ctx context.Context, id string) (*model.Room, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "room ID is required")
	}
	return s.rooms.GetByID(ctx, id)
}

// ListLive returns currently live rooms, newest first.
func (s *RoomService) ListLive(ctx context.Context, limit, offset int) ([]model.Room, error) {
	return s.rooms.ListLive(ctx, clampOpts(limit, offset))
}

// Join adds the user to the room as a listener.
//
// A community-gated room rejects non-members with a Forbidden error; the
// handler surfaces it with the community id so the client can route the
// user to the join page instead of a dead end.
func (s *RoomService) Join(ctx context.Context, roomID, userID string) (*model.Participant, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Live {
		return nil, apperror.ValidationFailed("roomId", "this room has ended")
	}

	if room.CommunityID != "" {
		member, err := s.communities.IsMember(ctx, room.CommunityID, userID)
		if err != nil {
			return nil, fmt.Errorf("checking community membership: %w", err)
		}
		if !member {
			return nil, apperror.Forbidden(
				fmt.Sprintf("this room is for members of community %s", room.CommunityID))
		}
	}

	// Already present? Rejoining is a no-op returning the existing row.
	if existing, err := s.rooms.FindPresent(ctx, roomID, userID); err == nil {
		return existing, nil
	}

	p, err := s.addParticipant(ctx, room, userID, model.RoomRoleListener)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user joined room",
		slog.String("roomID", roomID),
		slog.String("userID", userID),
	)
	return p, nil
}

// addParticipant writes the durable row, the Redis presence entry, and
// the change-feed event for one joining user.
func (s *RoomService) addParticipant(ctx context.Context, room *model.Room, userID string, role model.ParticipantRole) (*model.Participant, error) {
	p := &model.Participant{
		RoomID: room.ID,
		UserID: userID,
		Role:   role,
	}
	if err := s.rooms.AddParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("adding participant: %w", err)
	}

	if err := s.presence.Join(ctx, room.ID, *p, PresenceTTL); err != nil {
		// Presence is advisory; the durable row is the source of truth.
		s.logger.Warn("failed to record presence",
			slog.String("roomID", room.ID),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}

	s.publishParticipant(realtime.ActionInsert, p)
	return p, nil
}

// Leave closes the user's participant row and drops their presence.
func (s *RoomService) Leave(ctx context.Context, roomID, userID string) error {
	p, err := s.rooms.FindPresent(ctx, roomID, userID)
	if err != nil {
		return err
	}

	if err := s.rooms.MarkLeft(ctx, p.ID, time.Now()); err != nil {
		return err
	}
	if err := s.presence.Leave(ctx, roomID, userID); err != nil {
		s.logger.Warn("failed to clear presence",
			slog.String("roomID", roomID),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("user left room",
		slog.String("roomID", roomID),
		slog.String("userID", userID),
	)
	s.hub.Publish(realtime.Event{
		Action: realtime.ActionDelete,
		Table:  "room_participants",
		ID:     p.ID,
		Values: map[string]any{"room_id": roomID},
	})
	return nil
}

// SetFlags flips the caller's own muted/speaking bits.
func (s *RoomService) SetFlags(ctx context.Context, roomID, userID string, muted, speaking bool) (*model.Participant, error) {
	p, err := s.rooms.FindPresent(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	p.Muted = muted
	p.Speaking = speaking
	if err := s.rooms.UpdateParticipant(ctx, p); err != nil {
		return nil, err
	}
	if err := s.presence.SetFlags(ctx, roomID, userID, muted, speaking); err != nil {
		s.logger.Warn("failed to update presence flags",
			slog.String("roomID", roomID),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}

	s.publishParticipant(realtime.ActionUpdate, p)
	return p, nil
}

// SetRole changes another participant's role. Only the host and
// moderators may change roles, and nobody can touch the host's.
func (s *RoomService) SetRole(ctx context.Context, roomID, callerID, targetUserID string, role model.ParticipantRole) (*model.Participant, error) {
	switch role {
	case model.RoomRoleModerator, model.RoomRoleSpeaker, model.RoomRoleListener:
	default:
		return nil, apperror.ValidationFailed("role", fmt.Sprintf("cannot assign role %q", role))
	}

	caller, err := s.rooms.FindPresent(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if caller.Role != model.RoomRoleHost && caller.Role != model.RoomRoleModerator {
		return nil, apperror.Forbidden("only the host or a moderator can change roles")
	}

	target, err := s.rooms.FindPresent(ctx, roomID, targetUserID)
	if err != nil {
		return nil, err
	}
	if target.Role == model.RoomRoleHost {
		return nil, apperror.Forbidden("the host's role cannot be changed")
	}

	target.Role = role
	if err := s.rooms.UpdateParticipant(ctx, target); err != nil {
		return nil, err
	}

	s.logger.Info("participant role changed",
		slog.String("roomID", roomID),
		slog.String("userID", targetUserID),
		slog.String("role", string(role)),
	)
	s.publishParticipant(realtime.ActionUpdate, target)
	return target, nil
}

// Heartbeat refreshes the presence lease for the whole room. Any present
// participant's client may drive it.
func (s *RoomService) Heartbeat(ctx context.Context, roomID string) error {
	return s.presence.Touch(ctx, roomID, PresenceTTL)
}

// End closes the room. Only the host may end it. Every open participant
// row is closed, presence is cleared, and a final update event goes out.
func (s *RoomService) End(ctx context.Context, roomID, callerID string) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.HostID != callerID {
		return apperror.Forbidden("only the host can end a room")
	}

	if err := s.rooms.End(ctx, roomID); err != nil {
		return err
	}
	if err := s.presence.Clear(ctx, roomID); err != nil {
		s.logger.Warn("failed to clear room presence",
			slog.String("roomID", roomID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("room ended", slog.String("id", roomID))
	s.hub.Publish(realtime.Event{
		Action: realtime.ActionUpdate,
		Table:  "rooms",
		ID:     roomID,
		Values: map[string]any{"live": false, "community_id": room.CommunityID},
	})
	return nil
}

func (s *RoomService) publishParticipant(action realtime.Action, p *model.Participant) {
	s.hub.Publish(realtime.Event{
		Action: action,
		Table:  "room_participants",
		ID:     p.ID,
		Values: map[string]any{
			"room_id": p.RoomID,
			"user_id": p.UserID,
			"role":    string(p.Role),
		},
	})
}
