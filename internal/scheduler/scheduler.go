// Package scheduler publishes scheduled posts at their due time and re-arms
// pending ones after a restart.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/failure"
	"github.com/dnodevkis/tg-news-bot/internal/models"
)

// Store is the persisted scheduled-post table.
type Store interface {
	Create(ctx context.Context, post *models.ScheduledPost) (int64, error)
	Get(ctx context.Context, id int64) (*models.ScheduledPost, error)
	ListPending(ctx context.Context, after time.Time) ([]models.ScheduledPost, error)
	ListOverdue(ctx context.Context, before time.Time) ([]models.ScheduledPost, error)
	MarkPosted(ctx context.Context, id int64) (bool, error)
}

// Publisher sends a post to the broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, post models.Post) error
}

// Notifier reports scheduler problems to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// Config holds scheduler settings. Now and AfterFunc default to the time package.
type Config struct {
	PublishTimeout time.Duration
	Location       *time.Location
	Now            func() time.Time
	AfterFunc      func(d time.Duration, f func()) Timer
}

// Scheduler arms one timer per pending scheduled post.
type Scheduler struct {
	store     Store
	publisher Publisher
	notifier  Notifier
	cfg       Config
	logger    *zap.Logger

	mu      sync.Mutex
	timers  map[int64]Timer
	wg      sync.WaitGroup
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a Scheduler.
func New(store Store, publisher Publisher, notifier Notifier, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 60 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		timers:    make(map[int64]Timer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Schedule persists the post and arms its timer. post.ID is set on success.
func (s *Scheduler) Schedule(ctx context.Context, post *models.ScheduledPost) error {
	id, err := s.store.Create(ctx, post)
	if err != nil {
		return failure.Wrap(post.GroupID, failure.KindPersistence, "create_scheduled_post", err)
	}
	post.ID = id
	s.arm(id, post.GroupID, post.ScheduledTime)
	return nil
}

// Resume re-arms every unposted future row and reports overdue ones once,
// without firing them. It returns the number of armed posts.
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	now := s.cfg.Now()

	pending, err := s.store.ListPending(ctx, now)
	if err != nil {
		return 0, failure.New(failure.KindPersistence, "list_pending", err)
	}
	for _, p := range pending {
		s.arm(p.ID, p.GroupID, p.ScheduledTime)
	}

	overdue, err := s.store.ListOverdue(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list overdue scheduled posts", zap.Error(err))
	} else if len(overdue) > 0 {
		s.notifier.Notify(ctx, MissedText(overdue, s.cfg.Location))
		s.logger.Warn("Overdue scheduled posts were not published", zap.Int("count", len(overdue)))
	}

	s.logger.Info("Scheduled posts resumed", zap.Int("armed", len(pending)), zap.Int("overdue", len(overdue)))
	return len(pending), nil
}

// Pending returns the ids of armed posts in ascending order.
func (s *Scheduler) Pending() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stop disarms all timers and waits for running publishes to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) arm(id int64, groupID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if _, ok := s.timers[id]; ok {
		return
	}

	delay := at.Sub(s.cfg.Now())
	if delay < 0 {
		delay = 0
	}
	s.wg.Add(1)
	s.timers[id] = s.cfg.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.fire(id)
	})
	s.logger.Info("Scheduled post armed",
		zap.Int64("scheduled_post_id", id),
		zap.String("group_id", groupID),
		zap.Duration("in", delay))
}

// fire publishes the post once. A failed publish is reported and not retried.
func (s *Scheduler) fire(id int64) {
	s.mu.Lock()
	delete(s.timers, id)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.PublishTimeout)
	defer cancel()

	post, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Error("Failed to load scheduled post", zap.Int64("scheduled_post_id", id), zap.Error(err))
		s.notifier.Notify(ctx, fmt.Sprintf("❌ Не удалось загрузить отложенный пост %d: %v", id, err))
		return
	}
	if post.IsPosted {
		s.logger.Info("Scheduled post already published", zap.Int64("scheduled_post_id", id))
		return
	}

	if err := s.publisher.Publish(ctx, post.Post()); err != nil {
		ferr := failure.Wrap(post.GroupID, failure.KindPublish, "publish_scheduled", err)
		s.logger.Error("Failed to publish scheduled post", zap.Int64("scheduled_post_id", id), zap.Error(ferr))
		s.notifier.Notify(ctx, fmt.Sprintf("❌ Не удалось опубликовать отложенный пост группы %s (ID %d): %s.\n%v",
			post.GroupID, id, failure.Describe(failure.KindPublish), err))
		return
	}

	ok, err := s.store.MarkPosted(ctx, id)
	switch {
	case err != nil:
		s.logger.Error("Published but failed to mark scheduled post", zap.Int64("scheduled_post_id", id), zap.Error(err))
		s.notifier.Notify(ctx, fmt.Sprintf("⚠️ Пост группы %s опубликован, но статус не обновлён: %v", post.GroupID, err))
	case !ok:
		s.logger.Warn("Scheduled post was marked by someone else", zap.Int64("scheduled_post_id", id))
	default:
		s.logger.Info("Scheduled post published", zap.Int64("scheduled_post_id", id), zap.String("group_id", post.GroupID))
	}
}

// MissedText renders the operator notice about overdue posts.
func MissedText(posts []models.ScheduledPost, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("⚠️ Пропущенные отложенные посты (не опубликованы):\n")
	for _, p := range posts {
		fmt.Fprintf(&b, "• %s - %s (ID: %s)\n", p.ScheduledTime.In(loc).Format("02.01.2006 15:04"), p.Title, p.GroupID)
	}
	return b.String()
}
