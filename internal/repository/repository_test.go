package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dnodevkis/tg-news-bot/internal/models"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := NewDB(DriverSQLite, filepath.Join(t.TempDir(), "news.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, MigrateDB(db, logger))
	return db
}

func report(id, group string, at time.Time) models.RawReport {
	return models.RawReport{ID: id, GroupID: group, EventDate: at, Report: "report " + id}
}

func TestReportRepository_InsertAndFetch(t *testing.T) {
	db := newTestDB(t)
	repo := NewReportRepository(db, zaptest.NewLogger(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	n, err := repo.Insert(ctx, []models.RawReport{
		report("e2", "g1", base.Add(time.Hour)),
		report("e1", "g1", base),
		report("e3", "g2", base),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Duplicate ids are ignored.
	n, err = repo.Insert(ctx, []models.RawReport{report("e1", "g1", base)})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	reports, err := repo.FetchUnflagged(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "e1", reports[0].ID)
	assert.Equal(t, "e2", reports[1].ID)
	assert.Equal(t, "e3", reports[2].ID)
	assert.Nil(t, reports[0].IsPosted)
	assert.True(t, reports[0].EventDate.Equal(base))
}

func TestReportRepository_SetFlagIsMonotonic(t *testing.T) {
	db := newTestDB(t)
	repo := NewReportRepository(db, zaptest.NewLogger(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := repo.Insert(ctx, []models.RawReport{report("e1", "g1", base), report("e2", "g1", base.Add(time.Minute))})
	require.NoError(t, err)

	n, err := repo.SetFlag(ctx, "g1", false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Already claimed.
	n, err = repo.SetFlag(ctx, "g1", false)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	reports, err := repo.FetchUnflagged(ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)

	n, err = repo.SetFlag(ctx, "g1", true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// true never goes back to false.
	n, err = repo.SetFlag(ctx, "g1", false)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Published)
	assert.Equal(t, 0, stats.Pending)
	require.NotNil(t, stats.LastPublished)
	assert.True(t, stats.LastPublished.Equal(base.Add(time.Minute)))
}

func TestReportRepository_PublishLeavesLateReports(t *testing.T) {
	repo := NewReportRepository(newTestDB(t), zaptest.NewLogger(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := repo.Insert(ctx, []models.RawReport{report("e1", "g1", base)})
	require.NoError(t, err)
	n, err := repo.SetFlag(ctx, "g1", false)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = repo.Insert(ctx, []models.RawReport{report("e2", "g1", base.Add(time.Minute))})
	require.NoError(t, err)

	n, err = repo.SetFlag(ctx, "g1", true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	reports, err := repo.FetchUnflagged(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "e2", reports[0].ID)
}

func TestReportRepository_StatsEmpty(t *testing.T) {
	repo := NewReportRepository(newTestDB(t), zaptest.NewLogger(t))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ReportStats{}, *stats)
}

func TestScheduledPostRepository_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewScheduledPostRepository(db, zaptest.NewLogger(t))
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	future := &models.ScheduledPost{GroupID: "g1", ScheduledTime: now.Add(2 * time.Hour), Title: "T", Body: "B", ImageURL: "http://img/1.png"}
	past := &models.ScheduledPost{GroupID: "g2", ScheduledTime: now.Add(-time.Hour), Title: "T2", Body: "B2"}

	id1, err := repo.Create(ctx, future)
	require.NoError(t, err)
	id2, err := repo.Create(ctx, past)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, id1, future.ID)

	got, err := repo.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "http://img/1.png", got.ImageURL)
	assert.False(t, got.IsPosted)
	assert.True(t, got.ScheduledTime.Equal(now.Add(2*time.Hour)))

	got, err = repo.Get(ctx, id2)
	require.NoError(t, err)
	assert.Empty(t, got.ImageURL)

	pending, err := repo.ListPending(ctx, now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id1, pending[0].ID)

	overdue, err := repo.ListOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, id2, overdue[0].ID)

	upcoming, err := repo.ListUpcoming(ctx)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, id2, upcoming[0].ID)

	ok, err := repo.MarkPosted(ctx, id1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkPosted(ctx, id1)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err = repo.ListPending(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = repo.Get(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
