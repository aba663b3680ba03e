package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/realtime"
	"github.com/sakif/waveroom/internal/repository"
)

// =========================================================================
// MOCK TOPIC REPOSITORY
// =========================================================================

type mockTopicRepo struct {
	topics   map[string]*model.Topic
	comments map[string]*model.Comment
	nextID   int
}

func newMockTopicRepo() *mockTopicRepo {
	return &mockTopicRepo{
		topics:   make(map[string]*model.Topic),
		comments: make(map[string]*model.Comment),
	}
}

func (m *mockTopicRepo) Create(_ context.Context, topic *model.Topic) error {
	m.nextID++
	topic.ID = fmt.Sprintf("topic-%d", m.nextID)
	topic.CreatedAt = time.Now()
	stored := *topic
	m.topics[topic.ID] = &stored
	return nil
}

func (m *mockTopicRepo) GetByID(_ context.Context, id string) (*model.Topic, error) {
	topic, ok := m.topics[id]
	if !ok {
		return nil, apperror.NotFound("topic", id)
	}
	result := *topic
	for _, c := range m.comments {
		if c.TopicID == id {
			result.Comments = append(result.Comments, *c)
		}
	}
	return &result, nil
}

func (m *mockTopicRepo) GetByDate(_ context.Context, date string) (*model.Topic, error) {
	for _, topic := range m.topics {
		if topic.Date == date {
			result := *topic
			return &result, nil
		}
	}
	return nil, apperror.NotFound("topic", date)
}

func (m *mockTopicRepo) ListByCommunity(_ context.Context, communityID string, opts repository.ListOptions) ([]model.Topic, error) {
	result := make([]model.Topic, 0)
	for _, topic := range m.topics {
		if topic.CommunityID == communityID {
			result = append(result, *topic)
		}
	}
	return result, nil
}

func (m *mockTopicRepo) AddComment(_ context.Context, c *model.Comment) error {
	m.nextID++
	c.ID = fmt.Sprintf("comment-%d", m.nextID)
	c.CreatedAt = time.Now()
	stored := *c
	m.comments[c.ID] = &stored
	return nil
}

func (m *mockTopicRepo) GetComment(_ context.Context, id string) (*model.Comment, error) {
	c, ok := m.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", id)
	}
	result := *c
	return &result, nil
}

func (m *mockTopicRepo) Upvote(_ context.Context, commentID string) error {
	c, ok := m.comments[commentID]
	if !ok {
		return apperror.NotFound("comment", commentID)
	}
	c.Upvotes++
	return nil
}

func (m *mockTopicRepo) MarkAnswered(_ context.Context, commentID string) error {
	c, ok := m.comments[commentID]
	if !ok {
		return apperror.NotFound("comment", commentID)
	}
	c.Answered = true
	return nil
}

// =========================================================================
// TEST SETUP
// =========================================================================

func newTestTopicService(t *testing.T) (*TopicService, *mockTopicRepo) {
	t.Helper()
	topics := newMockTopicRepo()
	hub := realtime.NewHub(testLogger())
	svc := NewTopicService(topics, hub, testLogger())
	return svc, topics
}

// =========================================================================
// SCOPE TESTS
// =========================================================================

func TestTopicCreate_DailyScope(t *testing.T) {
	svc, _ := newTestTopicService(t)

	topic, err := svc.Create(context.Background(), "user-1", "what are you listening to?", "2026-08-31", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if topic.Date != "2026-08-31" {
		t.Errorf("Date = %q, want 2026-08-31", topic.Date)
	}
}

func TestTopicCreate_ExactlyOneScope(t *testing.T) {
	svc, _ := newTestTopicService(t)

	// Neither scope.
	_, err := svc.Create(context.Background(), "user-1", "scopeless", "", "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("no-scope error = %v, want ErrValidation", err)
	}

	// Both scopes.
	_, err = svc.Create(context.Background(), "user-1", "double", "2026-08-31", "comm-1")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("both-scopes error = %v, want ErrValidation", err)
	}
}

func TestTopicCreate_BadDate(t *testing.T) {
	svc, _ := newTestTopicService(t)

	for _, date := range []string{"31-08-2026", "2026/08/31", "today"} {
		_, err := svc.Create(context.Background(), "user-1", "daily", date, "")
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("Create(date=%q) error = %v, want ErrValidation", date, err)
		}
	}
}

// =========================================================================
// COMMENT TESTS
// =========================================================================

func TestTopicComment_ReplyToReplyReattaches(t *testing.T) {
	svc, _ := newTestTopicService(t)

	topic, err := svc.Create(context.Background(), "user-1", "daily", "2026-08-31", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	top, err := svc.Comment(context.Background(), topic.ID, "user-2", "top level", "", false)
	if err != nil {
		t.Fatalf("setup: Comment() error = %v", err)
	}
	reply, err := svc.Comment(context.Background(), topic.ID, "user-3", "a reply", top.ID, false)
	if err != nil {
		t.Fatalf("setup: Comment(reply) error = %v", err)
	}

	nested, err := svc.Comment(context.Background(), topic.ID, "user-4", "reply to the reply", reply.ID, false)
	if err != nil {
		t.Fatalf("Comment(nested) error = %v", err)
	}
	if nested.ParentID != top.ID {
		t.Errorf("ParentID = %q, want the top-level comment %q", nested.ParentID, top.ID)
	}
}

func TestTopicComment_ReplyNeverQuestion(t *testing.T) {
	svc, _ := newTestTopicService(t)

	topic, err := svc.Create(context.Background(), "user-1", "daily", "2026-08-31", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	top, err := svc.Comment(context.Background(), topic.ID, "user-2", "top level", "", false)
	if err != nil {
		t.Fatalf("setup: Comment() error = %v", err)
	}

	reply, err := svc.Comment(context.Background(), topic.ID, "user-3", "is this a question?", top.ID, true)
	if err != nil {
		t.Fatalf("Comment() error = %v", err)
	}
	if reply.Question {
		t.Error("a reply must never carry the question flag")
	}
}

func TestTopicComment_ParentFromOtherTopic(t *testing.T) {
	svc, _ := newTestTopicService(t)

	first, err := svc.Create(context.Background(), "user-1", "daily", "2026-08-30", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	second, err := svc.Create(context.Background(), "user-1", "daily", "2026-08-31", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	stray, err := svc.Comment(context.Background(), first.ID, "user-2", "on the first topic", "", false)
	if err != nil {
		t.Fatalf("setup: Comment() error = %v", err)
	}

	_, err = svc.Comment(context.Background(), second.ID, "user-3", "cross-topic reply", stray.ID, false)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for a cross-topic parent", err)
	}
}

// =========================================================================
// UPVOTE / ANSWERED TESTS
// =========================================================================

func TestTopicUpvote(t *testing.T) {
	svc, _ := newTestTopicService(t)

	topic, err := svc.Create(context.Background(), "user-1", "daily", "2026-08-31", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	comment, err := svc.Comment(context.Background(), topic.ID, "user-2", "nice", "", false)
	if err != nil {
		t.Fatalf("setup: Comment() error = %v", err)
	}

	svc.Upvote(context.Background(), comment.ID)
	updated, err := svc.Upvote(context.Background(), comment.ID)
	if err != nil {
		t.Fatalf("Upvote() error = %v", err)
	}
	if updated.Upvotes != 2 {
		t.Errorf("Upvotes = %d, want 2", updated.Upvotes)
	}
}

func TestTopicMarkAnswered_TopicAuthorOnly(t *testing.T) {
	svc, _ := newTestTopicService(t)

	topic, err := svc.Create(context.Background(), "user-1", "AMA", "2026-08-31", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	question, err := svc.Comment(context.Background(), topic.ID, "user-2", "how long did this take?", "", true)
	if err != nil {
		t.Fatalf("setup: Comment() error = %v", err)
	}

	_, err = svc.MarkAnswered(context.Background(), question.ID, "user-2")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("non-author error = %v, want ErrForbidden", err)
	}

	answered, err := svc.MarkAnswered(context.Background(), question.ID, "user-1")
	if err != nil {
		t.Fatalf("MarkAnswered() error = %v", err)
	}
	if !answered.Answered {
		t.Error("comment should be marked answered")
	}
}

func TestTopicMarkAnswered_NonQuestion(t *testing.T) {
	svc, _ := newTestTopicService(t)

	topic, err := svc.Create(context.Background(), "user-1", "AMA", "2026-08-31", "")
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	comment, err := svc.Comment(context.Background(), topic.ID, "user-2", "just a remark", "", false)
	if err != nil {
		t.Fatalf("setup: Comment() error = %v", err)
	}

	_, err = svc.MarkAnswered(context.Background(), comment.ID, "user-1")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for a non-question", err)
	}
}
