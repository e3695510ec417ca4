package grouper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dnodevkis/tg-news-bot/internal/failure"
	"github.com/dnodevkis/tg-news-bot/internal/models"
)

type memorySource struct {
	mu      sync.Mutex
	reports []models.RawReport
	err     error
}

func (m *memorySource) FetchUnflagged(context.Context) ([]models.RawReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.RawReport
	for _, r := range m.reports {
		if r.IsPosted == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memorySource) SetFlag(_ context.Context, groupID string, posted bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.reports {
		r := &m.reports[i]
		if r.GroupID != groupID {
			continue
		}
		if (!posted && r.IsPosted == nil) || (posted && r.IsPosted != nil && !*r.IsPosted) {
			v := posted
			r.IsPosted = &v
			n++
		}
	}
	return n, nil
}

func TestGroup_WindowAndOrder(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &memorySource{}
	for i := 5; i >= 1; i-- {
		src.reports = append(src.reports, models.RawReport{
			ID: fmt.Sprintf("a%d", i), GroupID: "a", EventDate: base.Add(time.Duration(i) * time.Hour), Report: fmt.Sprintf("A%d", i),
		})
	}
	src.reports = append(src.reports, models.RawReport{ID: "b1", GroupID: "b", EventDate: base, Report: "B1"})

	g := New(src, nil, 0, zaptest.NewLogger(t))
	groups, err := g.Group(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	a := groups["a"]
	assert.Equal(t, []string{"A3", "A4", "A5"}, a.Bodies())
	for i := 1; i < len(a.Reports); i++ {
		assert.True(t, a.Reports[i-1].EventDate.Before(a.Reports[i].EventDate))
	}
	assert.Len(t, groups["b"].Reports, 1)

	// All reports of both groups are now flagged false, truncated ones included.
	for _, r := range src.reports {
		require.NotNil(t, r.IsPosted, r.ID)
		assert.False(t, *r.IsPosted, r.ID)
	}

	again, err := g.Group(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestGroup_EmptyIsNotAnError(t *testing.T) {
	groups, err := New(&memorySource{}, nil, 3, zaptest.NewLogger(t)).Group(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestGroup_FetchFailure(t *testing.T) {
	src := &memorySource{err: errors.New("connection refused")}
	_, err := New(src, nil, 3, zaptest.NewLogger(t)).Group(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.KindPersistence, failure.KindOf(err))
}

func TestGroup_ConcurrentPollsClaimOnce(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &memorySource{}
	for i := 0; i < 20; i++ {
		src.reports = append(src.reports, models.RawReport{
			ID: fmt.Sprintf("r%d", i), GroupID: fmt.Sprintf("g%d", i%5), EventDate: base.Add(time.Duration(i) * time.Minute),
		})
	}
	g := New(src, nil, 3, zaptest.NewLogger(t))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total = map[string]int{}
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			groups, err := g.Group(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for id := range groups {
				total[id]++
			}
		}()
	}
	wg.Wait()

	require.Len(t, total, 5)
	for id, n := range total {
		assert.Equal(t, 1, n, id)
	}
}

type liveSessions map[string]bool

func (l liveSessions) Has(groupID string) bool { return l[groupID] }

func TestGroup_SkipsGroupsUnderReview(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &memorySource{reports: []models.RawReport{
		{ID: "a1", GroupID: "a", EventDate: base},
		{ID: "b1", GroupID: "b", EventDate: base},
	}}
	live := liveSessions{"a": true}
	g := New(src, live, 3, zaptest.NewLogger(t))

	groups, err := g.Group(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, SortedIDs(groups))
	assert.Nil(t, src.reports[0].IsPosted)

	delete(live, "a")
	groups, err = g.Group(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, SortedIDs(groups))
}

func TestSortedIDs(t *testing.T) {
	groups := map[string]models.NewsGroup{"b": {}, "a": {}, "c": {}}
	assert.Equal(t, []string{"a", "b", "c"}, SortedIDs(groups))
}
