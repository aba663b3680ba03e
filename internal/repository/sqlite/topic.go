package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/waveroom/internal/apperror"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/repository"
)

var _ repository.TopicRepository = (*TopicRepo)(nil)

type TopicRepo struct {
	conn *sql.DB
}

func NewTopicRepo(db *DB) *TopicRepo {
	return &TopicRepo{conn: db.conn}
}

func (r *TopicRepo) Create(ctx context.Context, topic *model.Topic) error {
	topic.ID = xid.New().String()
	topic.CreatedAt = time.Now()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO topics (id, title, date, community_id, author_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		topic.ID, topic.Title, topic.Date, topic.CommunityID,
		topic.AuthorID, topic.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating topic: %w", err)
	}
	return nil
}

// GetByID returns the composed thread: top-level comments in posting
// order, with replies nested one level under their parent. Replies never
// nest further — the tree is at most two levels deep.
func (r *TopicRepo) GetByID(ctx context.Context, id string) (*model.Topic, error) {
	topic, err := r.scanTopicRow(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}

	comments, err := r.listComments(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	topic.Comments = nestReplies(comments)

	return topic, nil
}

func (r *TopicRepo) GetByDate(ctx context.Context, date string) (*model.Topic, error) {
	topic, err := r.scanTopicRow(ctx, `WHERE date = ?`, date)
	if err != nil {
		return nil, err
	}

	comments, err := r.listComments(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	topic.Comments = nestReplies(comments)

	return topic, nil
}

func (r *TopicRepo) scanTopicRow(ctx context.Context, where, key string) (*model.Topic, error) {
	var t model.Topic
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, title, date, community_id, author_id, created_at
		 FROM topics `+where, key,
	).Scan(&t.ID, &t.Title, &t.Date, &t.CommunityID, &t.AuthorID, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("topic", key)
		}
		return nil, fmt.Errorf("sqlite: getting topic %s: %w", key, err)
	}
	return &t, nil
}

func (r *TopicRepo) listComments(ctx context.Context, topicID string) ([]model.Comment, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT c.id, c.topic_id, c.author_id, c.body, c.parent_id, c.upvotes,
		        c.question, c.answered, c.created_at,
		        u.id, u.handle, u.name, u.avatar_url, u.bio, u.created_at, u.updated_at
		 FROM topic_comments c
		 JOIN users u ON u.id = c.author_id
		 WHERE c.topic_id = ?
		 ORDER BY c.created_at ASC`,
		topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments: %w", err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0, 16)
	for rows.Next() {
		var (
			c model.Comment
			u model.User
		)
		if err := rows.Scan(&c.ID, &c.TopicID, &c.AuthorID, &c.Body, &c.ParentID,
			&c.Upvotes, &c.Question, &c.Answered, &c.CreatedAt,
			&u.ID, &u.Handle, &u.Name, &u.AvatarURL, &u.Bio,
			&u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment: %w", err)
		}
		c.Author = &u
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}

// nestReplies folds a flat comment list into top-level comments with
// their replies attached. Orphaned replies (parent deleted) are dropped.
func nestReplies(flat []model.Comment) []model.Comment {
	top := make([]model.Comment, 0, len(flat))
	index := make(map[string]int, len(flat))

	for _, c := range flat {
		if c.ParentID == "" {
			index[c.ID] = len(top)
			top = append(top, c)
		}
	}
	for _, c := range flat {
		if c.ParentID == "" {
			continue
		}
		if i, ok := index[c.ParentID]; ok {
			top[i].Replies = append(top[i].Replies, c)
		}
	}
	return top
}

func (r *TopicRepo) ListByCommunity(ctx context.Context, communityID string, opts repository.ListOptions) ([]model.Topic, error) {
	limit, offset := clampList(opts)

	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, title, date, community_id, author_id, created_at
		 FROM topics
		 WHERE community_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		communityID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing topics of community %s: %w", communityID, err)
	}
	defer rows.Close()

	topics := make([]model.Topic, 0, limit)
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.Title, &t.Date, &t.CommunityID,
			&t.AuthorID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating topics: %w", err)
	}
	return topics, nil
}

func (r *TopicRepo) AddComment(ctx context.Context, c *model.Comment) error {
	c.ID = xid.New().String()
	c.CreatedAt = time.Now()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO topic_comments (id, topic_id, author_id, body, parent_id,
		                             upvotes, question, answered, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TopicID, c.AuthorID, c.Body, c.ParentID,
		c.Upvotes, c.Question, c.Answered, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding comment: %w", err)
	}
	return nil
}

func (r *TopicRepo) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	var (
		c model.Comment
		u model.User
	)
	err := r.conn.QueryRowContext(ctx,
		`SELECT c.id, c.topic_id, c.author_id, c.body, c.parent_id, c.upvotes,
		        c.question, c.answered, c.created_at,
		        u.id, u.handle, u.name, u.avatar_url, u.bio, u.created_at, u.updated_at
		 FROM topic_comments c
		 JOIN users u ON u.id = c.author_id
		 WHERE c.id = ?`,
		id,
	).Scan(&c.ID, &c.TopicID, &c.AuthorID, &c.Body, &c.ParentID,
		&c.Upvotes, &c.Question, &c.Answered, &c.CreatedAt,
		&u.ID, &u.Handle, &u.Name, &u.AvatarURL, &u.Bio,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	c.Author = &u
	return &c, nil
}

func (r *TopicRepo) Upvote(ctx context.Context, commentID string) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE topic_comments SET upvotes = upvotes + 1 WHERE id = ?`, commentID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upvoting comment %s: %w", commentID, err)
	}
	return checkAffected(result, "comment", commentID)
}

func (r *TopicRepo) MarkAnswered(ctx context.Context, commentID string) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE topic_comments SET answered = 1 WHERE id = ? AND question = 1`, commentID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking comment %s answered: %w", commentID, err)
	}
	return checkAffected(result, "comment", commentID)
}
