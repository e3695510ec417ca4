package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/models"
)

// ErrNotFound is returned when a scheduled post does not exist.
var ErrNotFound = errors.New("not found")

// ScheduledPostRepository defines the interface for scheduled post operations
type ScheduledPostRepository interface {
	Create(ctx context.Context, post *models.ScheduledPost) (int64, error)
	Get(ctx context.Context, id int64) (*models.ScheduledPost, error)
	ListPending(ctx context.Context, after time.Time) ([]models.ScheduledPost, error)
	ListOverdue(ctx context.Context, before time.Time) ([]models.ScheduledPost, error)
	ListUpcoming(ctx context.Context) ([]models.ScheduledPost, error)
	MarkPosted(ctx context.Context, id int64) (bool, error)
}

type scheduledPostRepository struct {
	db     *sqlx.DB
	sb     sq.StatementBuilderType
	logger *zap.Logger
}

// NewScheduledPostRepository creates a new scheduled post repository
func NewScheduledPostRepository(db *sqlx.DB, logger *zap.Logger) ScheduledPostRepository {
	return &scheduledPostRepository{
		db:     db,
		sb:     statementBuilder(db),
		logger: logger,
	}
}

var scheduledPostColumns = []string{
	"id", "group_id", "scheduled_time", "title", "body",
	"COALESCE(image_url, '') AS image_url", "is_posted",
}

func (r *scheduledPostRepository) Create(ctx context.Context, post *models.ScheduledPost) (int64, error) {
	imageURL := sql.NullString{String: post.ImageURL, Valid: post.ImageURL != ""}

	query, args, err := r.sb.Insert("scheduled_posts").
		Columns("group_id", "scheduled_time", "title", "body", "image_url", "is_posted").
		Values(post.GroupID, post.ScheduledTime.UTC(), post.Title, post.Body, imageURL, false).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		r.logger.Error("Failed to create scheduled post", zap.String("group_id", post.GroupID), zap.Error(err))
		return 0, err
	}
	post.ID = id
	return id, nil
}

func (r *scheduledPostRepository) Get(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query, args, err := r.sb.Select(scheduledPostColumns...).
		From("scheduled_posts").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var post models.ScheduledPost
	if err := r.db.GetContext(ctx, &post, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

// ListPending returns unposted rows due strictly after the given instant.
func (r *scheduledPostRepository) ListPending(ctx context.Context, after time.Time) ([]models.ScheduledPost, error) {
	return r.list(ctx, sq.Gt{"scheduled_time": after.UTC()})
}

// ListOverdue returns unposted rows due at or before the given instant.
func (r *scheduledPostRepository) ListOverdue(ctx context.Context, before time.Time) ([]models.ScheduledPost, error) {
	return r.list(ctx, sq.LtOrEq{"scheduled_time": before.UTC()})
}

// ListUpcoming returns every unposted row, overdue ones included.
func (r *scheduledPostRepository) ListUpcoming(ctx context.Context) ([]models.ScheduledPost, error) {
	return r.list(ctx, sq.Expr("1 = 1"))
}

func (r *scheduledPostRepository) list(ctx context.Context, timeCond sq.Sqlizer) ([]models.ScheduledPost, error) {
	query, args, err := r.sb.Select(scheduledPostColumns...).
		From("scheduled_posts").
		Where(sq.And{sq.Eq{"is_posted": false}, timeCond}).
		OrderBy("scheduled_time", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	var posts []models.ScheduledPost
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		r.logger.Error("Failed to list scheduled posts", zap.Error(err))
		return nil, err
	}
	return posts, nil
}

// MarkPosted flips is_posted once. It reports false if the row was already posted.
func (r *scheduledPostRepository) MarkPosted(ctx context.Context, id int64) (bool, error) {
	query, args, err := r.sb.Update("scheduled_posts").
		Set("is_posted", true).
		Where(sq.Eq{"id": id, "is_posted": false}).
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to mark scheduled post as posted", zap.Int64("id", id), zap.Error(err))
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
