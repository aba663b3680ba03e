package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/realtime"
	"github.com/sakif/waveroom/internal/repository"
)

const (
	MaxTopicTitleLength  = 200
	MaxCommentBodyLength = 4000
)

// topicDatePattern is the YYYY-MM-DD key of a daily topic.
var topicDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// TopicService handles discussion threads: the daily topic, community
// topics, and their comment trees.
type TopicService struct {
	topics repository.TopicRepository
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewTopicService(topics repository.TopicRepository, hub *realtime.Hub, logger *slog.Logger) *TopicService {
	return &TopicService{
		topics: topics,
		hub:    hub,
		logger: logger,
	}
}

// Create opens a topic. A topic is scoped either to a date (the daily
// topic) or to a community — exactly one of the two.
func (s *TopicService) Create(ctx context.Context, authorID, title, date, communityID string) (*model.Topic, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "topic title is required")
	}
	if len(title) > MaxTopicTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("topic title must be %d characters or less", MaxTopicTitleLength))
	}

	hasDate := date != ""
	hasCommunity := communityID != ""
	if hasDate == hasCommunity {
		return nil, apperror.ValidationFailed("scope",
			"a topic is scoped to either a date or a community, not both or neither")
	}
	if hasDate && !topicDatePattern.MatchString(date) {
		return nil, apperror.ValidationFailed("date", "date must be YYYY-MM-DD")
	}

	topic := &model.Topic{
		Title:       title,
		Date:        date,
		CommunityID: communityID,
		AuthorID:    authorID,
	}
	if err := s.topics.Create(ctx, topic); err != nil {
		s.logger.Error("failed to create topic",
			slog.String("authorID", authorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating topic: %w", err)
	}

	s.logger.Info("topic created",
		slog.String("id", topic.ID),
		slog.String("date", date),
		slog.String("communityID", communityID),
	)

	s.hub.Publish(realtime.Event{
		Action: realtime.ActionInsert,
		Table:  "topics",
		ID:     topic.ID,
		Values: map[string]any{"date": date, "community_id": communityID},
	})
	return topic, nil
}

// Get returns the composed thread by topic id.
func (s *TopicService) Get(ctx context.Context, id string) (*model.Topic, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "topic ID is required")
	}
	return s.topics.GetByID(ctx, id)
}

// GetByDate returns the daily topic for a YYYY-MM-DD date.
func (s *TopicService) GetByDate(ctx context.Context, date string) (*model.Topic, error) {
	if !topicDatePattern.MatchString(date) {
		return nil, apperror.ValidationFailed("date", "date must be YYYY-MM-DD")
	}
	return s.topics.GetByDate(ctx, date)
}

// ListByCommunity returns a community's topics, newest first.
func (s *TopicService) ListByCommunity(ctx context.Context, communityID string, limit, offset int) ([]model.Topic, error) {
	if strings.TrimSpace(communityID) == "" {
		return nil, apperror.ValidationFailed("communityId", "community ID is required")
	}
	return s.topics.ListByCommunity(ctx, communityID, clampOpts(limit, offset))
}

// Comment posts a comment on a topic. A non-empty parentID makes it a
// reply; replies to replies reattach to the top-level parent so the tree
// stays two levels deep.
func (s *TopicService) Comment(ctx context.Context, topicID, authorID, body, parentID string, question bool) (*model.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperror.ValidationFailed("body", "comment body is required")
	}
	if len(body) > MaxCommentBodyLength {
		return nil, apperror.ValidationFailed("body",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentBodyLength))
	}

	if _, err := s.topics.GetByID(ctx, topicID); err != nil {
		return nil, err
	}

	if parentID != "" {
		parent, err := s.topics.GetComment(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if parent.TopicID != topicID {
			return nil, apperror.ValidationFailed("parentId", "parent comment belongs to a different topic")
		}
		if parent.ParentID != "" {
			parentID = parent.ParentID
		}
		// A reply is never a question; questions are top-level.
		question = false
	}

	comment := &model.Comment{
		TopicID:  topicID,
		AuthorID: authorID,
		Body:     body,
		ParentID: parentID,
		Question: question,
	}
	if err := s.topics.AddComment(ctx, comment); err != nil {
		s.logger.Error("failed to add comment",
			slog.String("topicID", topicID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("adding comment: %w", err)
	}

	s.publishComment(realtime.ActionInsert, comment)
	return comment, nil
}

// Upvote bumps a comment's upvote counter.
func (s *TopicService) Upvote(ctx context.Context, commentID string) (*model.Comment, error) {
	if err := s.topics.Upvote(ctx, commentID); err != nil {
		return nil, err
	}

	comment, err := s.topics.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	s.publishComment(realtime.ActionUpdate, comment)
	return comment, nil
}

// MarkAnswered flags a question comment as answered. Only the topic's
// author may do this.
func (s *TopicService) MarkAnswered(ctx context.Context, commentID, callerID string) (*model.Comment, error) {
	comment, err := s.topics.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !comment.Question {
		return nil, apperror.ValidationFailed("commentId", "only question comments can be marked answered")
	}

	topic, err := s.topics.GetByID(ctx, comment.TopicID)
	if err != nil {
		return nil, err
	}
	if topic.AuthorID != callerID {
		return nil, apperror.Forbidden("only the topic author can mark questions answered")
	}

	if err := s.topics.MarkAnswered(ctx, commentID); err != nil {
		return nil, err
	}

	comment.Answered = true
	s.publishComment(realtime.ActionUpdate, comment)
	return comment, nil
}

func (s *TopicService) publishComment(action realtime.Action, c *model.Comment) {
	s.hub.Publish(realtime.Event{
		Action: action,
		Table:  "topic_comments",
		ID:     c.ID,
		Values: map[string]any{
			"topic_id":  c.TopicID,
			"parent_id": c.ParentID,
		},
	})
}
