package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/realtime"
	"github.com/sakif/waveroom/internal/repository"
)

const MaxCommunityNameLength = 80

// CommunityService handles communities and memberships. Membership is
// what gates community-scoped rooms — RoomService asks through the same
// repository this service writes to.
type CommunityService struct {
	communities repository.CommunityRepository
	hub         *realtime.Hub
	logger      *slog.Logger
}

func NewCommunityService(communities repository.CommunityRepository, hub *realtime.Hub, logger *slog.Logger) *CommunityService {
	return &CommunityService{
		communities: communities,
		hub:         hub,
		logger:      logger,
	}
}

// Create makes a new community with the creator as its first member.
func (s *CommunityService) Create(ctx context.Context, creatorID, name, description string) (*model.Community, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "community name is required")
	}
	if len(name) > MaxCommunityNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("community name must be %d characters or less", MaxCommunityNameLength))
	}

	community := &model.Community{
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if err := s.communities.Create(ctx, community); err != nil {
		s.logger.Error("failed to create community",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating community: %w", err)
	}

	if err := s.communities.Join(ctx, community.ID, creatorID); err != nil {
		return nil, fmt.Errorf("adding creator to community: %w", err)
	}
	community.MemberCount = 1

	s.logger.Info("community created",
		slog.String("id", community.ID),
		slog.String("name", name),
	)

	s.publish(realtime.ActionInsert, community)
	return community, nil
}

// Get returns one community.
func (s *CommunityService) Get(ctx context.Context, id string) (*model.Community, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "community ID is required")
	}
	return s.communities.GetByID(ctx, id)
}

// List returns communities, largest first.
func (s *CommunityService) List(ctx context.Context, limit, offset int) ([]model.Community, error) {
	return s.communities.List(ctx, clampOpts(limit, offset))
}

// Join adds the user as a member. Idempotent.
func (s *CommunityService) Join(ctx context.Context, communityID, userID string) error {
	community, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return err
	}

	if err := s.communities.Join(ctx, communityID, userID); err != nil {
		return err
	}

	s.logger.Info("user joined community",
		slog.String("communityID", communityID),
		slog.String("userID", userID),
	)
	s.publish(realtime.ActionUpdate, community)
	return nil
}

// Leave removes the user's membership. Idempotent.
func (s *CommunityService) Leave(ctx context.Context, communityID, userID string) error {
	community, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return err
	}

	if err := s.communities.Leave(ctx, communityID, userID); err != nil {
		return err
	}

	s.logger.Info("user left community",
		slog.String("communityID", communityID),
		slog.String("userID", userID),
	)
	s.publish(realtime.ActionUpdate, community)
	return nil
}

// IsMember reports whether the user belongs to the community.
func (s *CommunityService) IsMember(ctx context.Context, communityID, userID string) (bool, error) {
	return s.communities.IsMember(ctx, communityID, userID)
}

func (s *CommunityService) publish(action realtime.Action, c *model.Community) {
	s.hub.Publish(realtime.Event{
		Action: action,
		Table:  "communities",
		ID:     c.ID,
	})
}
