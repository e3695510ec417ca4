// Package grouper turns unflagged raw reports into claimed news groups.
package grouper

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/failure"
	"github.com/dnodevkis/tg-news-bot/internal/models"
)

// DefaultWindow is the number of most recent reports kept per group.
const DefaultWindow = 3

// ReportSource is the subset of the report store the grouper needs.
type ReportSource interface {
	FetchUnflagged(ctx context.Context) ([]models.RawReport, error)
	SetFlag(ctx context.Context, groupID string, posted bool) (int64, error)
}

// Sessions tells whether a group is currently under review.
type Sessions interface {
	Has(groupID string) bool
}

// Grouper clusters unflagged reports by group id and claims each group.
type Grouper struct {
	source   ReportSource
	sessions Sessions
	window   int
	logger   *zap.Logger
}

// New creates a Grouper. A non-positive window falls back to DefaultWindow.
// sessions may be nil when nothing reviews the groups.
func New(source ReportSource, sessions Sessions, window int, logger *zap.Logger) *Grouper {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Grouper{source: source, sessions: sessions, window: window, logger: logger}
}

// Group returns every group that had unflagged reports and was claimed by
// this call. Reports are sorted by event date ascending and truncated to
// the most recent window. A group is claimed by flagging all of its
// unflagged reports false; a group another caller claimed first is skipped.
// A group with a live review session is left unflagged for a later call.
func (g *Grouper) Group(ctx context.Context) (map[string]models.NewsGroup, error) {
	reports, err := g.source.FetchUnflagged(ctx)
	if err != nil {
		return nil, failure.New(failure.KindPersistence, "fetch_unflagged", err)
	}

	groups := Cluster(reports, g.window)
	claimed := make(map[string]models.NewsGroup, len(groups))

	for id, group := range groups {
		if g.sessions != nil && g.sessions.Has(id) {
			g.logger.Debug("Group is under review, deferring new reports", zap.String("group_id", id))
			continue
		}
		n, err := g.source.SetFlag(ctx, id, false)
		if err != nil {
			g.logger.Error("Failed to claim group", zap.String("group_id", id), zap.Error(err))
			continue
		}
		if n == 0 {
			g.logger.Debug("Group already claimed", zap.String("group_id", id))
			continue
		}
		claimed[id] = group
	}

	if len(claimed) > 0 {
		g.logger.Info("Claimed news groups", zap.Int("count", len(claimed)))
	}
	return claimed, nil
}

// Cluster groups reports by group id without touching the store.
func Cluster(reports []models.RawReport, window int) map[string]models.NewsGroup {
	if window <= 0 {
		window = DefaultWindow
	}

	byGroup := make(map[string][]models.RawReport)
	for _, r := range reports {
		if r.GroupID == "" {
			continue
		}
		byGroup[r.GroupID] = append(byGroup[r.GroupID], r)
	}

	groups := make(map[string]models.NewsGroup, len(byGroup))
	for id, members := range byGroup {
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].EventDate.Before(members[j].EventDate)
		})
		if len(members) > window {
			members = members[len(members)-window:]
		}
		groups[id] = models.NewsGroup{GroupID: id, Reports: members}
	}
	return groups
}

// SortedIDs returns the group ids in a stable order for presentation.
func SortedIDs(groups map[string]models.NewsGroup) []string {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
