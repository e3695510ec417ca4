package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/models"
)

// ReportRepository defines the interface for raw report operations
type ReportRepository interface {
	FetchUnflagged(ctx context.Context) ([]models.RawReport, error)
	SetFlag(ctx context.Context, groupID string, posted bool) (int64, error)
	Insert(ctx context.Context, reports []models.RawReport) (int, error)
	Stats(ctx context.Context) (*models.ReportStats, error)
}

type reportRepository struct {
	db     *sqlx.DB
	sb     sq.StatementBuilderType
	logger *zap.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sqlx.DB, logger *zap.Logger) ReportRepository {
	return &reportRepository{
		db:     db,
		sb:     statementBuilder(db),
		logger: logger,
	}
}

var reportColumns = []string{"event_id", `"groupId"`, `"eventDate"`, "report", `"isPosted"`}

func (r *reportRepository) FetchUnflagged(ctx context.Context) ([]models.RawReport, error) {
	query, args, err := r.sb.Select(reportColumns...).
		From("fetched_events").
		Where(sq.Expr(`"isPosted" IS NULL`)).
		OrderBy(`"groupId"`, `"eventDate"`).
		ToSql()
	if err != nil {
		return nil, err
	}

	var reports []models.RawReport
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		r.logger.Error("Failed to fetch unflagged reports", zap.Error(err))
		return nil, err
	}
	return reports, nil
}

// SetFlag moves every report of the group forward: nil -> false when taking
// it into review, false -> true when publishing. Reports that arrived after
// the claim stay nil. It never goes back.
func (r *reportRepository) SetFlag(ctx context.Context, groupID string, posted bool) (int64, error) {
	cond := sq.And{sq.Eq{`"groupId"`: groupID}}
	if posted {
		cond = append(cond, sq.Eq{`"isPosted"`: false})
	} else {
		cond = append(cond, sq.Expr(`"isPosted" IS NULL`))
	}

	query, args, err := r.sb.Update("fetched_events").
		Set(`"isPosted"`, posted).
		Where(cond).
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update report flag", zap.String("group_id", groupID), zap.Bool("posted", posted), zap.Error(err))
		return 0, err
	}
	return res.RowsAffected()
}

func (r *reportRepository) Insert(ctx context.Context, reports []models.RawReport) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, rep := range reports {
		query, args, err := r.sb.Insert("fetched_events").
			Columns(reportColumns...).
			Values(rep.ID, rep.GroupID, rep.EventDate.UTC(), rep.Report, rep.IsPosted).
			Suffix("ON CONFLICT (event_id) DO NOTHING").
			ToSql()
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.Error("Failed to insert report", zap.String("event_id", rep.ID), zap.Error(err))
			return 0, fmt.Errorf("insert report %s: %w", rep.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *reportRepository) Stats(ctx context.Context) (*models.ReportStats, error) {
	var stats models.ReportStats
	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN "isPosted" IS NULL THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN "isPosted" = TRUE THEN 1 ELSE 0 END), 0) AS published,
			COALESCE(SUM(CASE WHEN "isPosted" = FALSE THEN 1 ELSE 0 END), 0) AS rejected
		FROM fetched_events
	`
	if err := r.db.QueryRowxContext(ctx, query).Scan(&stats.Total, &stats.Pending, &stats.Published, &stats.Rejected); err != nil {
		r.logger.Error("Failed to count reports", zap.Error(err))
		return nil, err
	}

	lastQuery, args, err := r.sb.Select(`"eventDate"`).
		From("fetched_events").
		Where(sq.Eq{`"isPosted"`: true}).
		OrderBy(`"eventDate" DESC`).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var last sql.NullTime
	err = r.db.GetContext(ctx, &last, lastQuery, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		r.logger.Error("Failed to get last published report", zap.Error(err))
		return nil, err
	case last.Valid:
		stats.LastPublished = &last.Time
	}

	return &stats, nil
}
