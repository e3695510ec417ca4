package news_processor

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dnodevkis/tg-news-bot/internal/grouper"
	"github.com/dnodevkis/tg-news-bot/internal/models"
	"github.com/dnodevkis/tg-news-bot/internal/review"
)

// Grouper claims groups of unflagged reports.
type Grouper interface {
	Group(ctx context.Context) (map[string]models.NewsGroup, error)
}

// Workflow starts a review session for a claimed group.
type Workflow interface {
	Start(ctx context.Context, group models.NewsGroup) (*review.Session, error)
}

// Presenter shows pipeline progress and outcomes to the operator. Progress
// returns a handle that the outcome call replaces in place; 0 means none.
type Presenter interface {
	Progress(ctx context.Context, groupID string, queued int) int
	Draft(ctx context.Context, handle int, sess *review.Session)
	Rejected(ctx context.Context, handle int, sess *review.Session)
	Failed(ctx context.Context, handle int, groupID string, err error)
}

// Config holds poll loop settings.
type Config struct {
	PollInterval  time.Duration
	FirstRunDelay time.Duration
	Concurrency   int
}

// Processor periodically claims new groups and runs them through the editor.
type Processor struct {
	grouper   Grouper
	workflow  Workflow
	presenter Presenter
	cfg       Config
	logger    *zap.Logger

	trigger  chan struct{}
	lastRun  atomic.Int64
	inFlight atomic.Bool
}

// NewProcessor creates a new news processor.
func NewProcessor(grouper Grouper, workflow Workflow, presenter Presenter, cfg Config, logger *zap.Logger) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 600 * time.Second
	}
	if cfg.FirstRunDelay < 0 {
		cfg.FirstRunDelay = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Processor{
		grouper:   grouper,
		workflow:  workflow,
		presenter: presenter,
		cfg:       cfg,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
	}
}

// Run starts the periodic news check. The first check happens after
// FirstRunDelay, then every PollInterval, plus whenever CheckNow is called.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("News processor started.",
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Duration("first_run_delay", p.cfg.FirstRunDelay))

	first := time.NewTimer(p.cfg.FirstRunDelay)
	defer first.Stop()

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("News processor stopped.")
			return
		case <-first.C:
			ticker = time.NewTicker(p.cfg.PollInterval)
			tick = ticker.C
			p.cycle(ctx, "timer")
		case <-tick:
			p.cycle(ctx, "timer")
		case <-p.trigger:
			p.cycle(ctx, "manual")
		}
	}
}

// CheckNow asks the running loop for an immediate check. It returns false if
// one is already queued.
func (p *Processor) CheckNow() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// LastRun returns when the last check finished, or the zero time.
func (p *Processor) LastRun() time.Time {
	ns := p.lastRun.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Busy reports whether a check is running.
func (p *Processor) Busy() bool {
	return p.inFlight.Load()
}

func (p *Processor) cycle(ctx context.Context, reason string) {
	p.logger.Info("Checking for new reports...", zap.String("trigger", reason))
	n, err := p.ProcessOnce(ctx)
	if err != nil {
		p.logger.Error("News check failed", zap.Error(err))
		return
	}
	if n == 0 {
		p.logger.Info("No new report groups.")
	}
}

// ProcessOnce claims the current groups and processes them, at most
// Concurrency at a time. A failing group never affects the others.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	p.inFlight.Store(true)
	defer func() {
		p.inFlight.Store(false)
		p.lastRun.Store(time.Now().UnixNano())
	}()

	groups, err := p.grouper.Group(ctx)
	if err != nil {
		return 0, err
	}
	if len(groups) == 0 {
		return 0, nil
	}

	ids := grouper.SortedIDs(groups)
	p.logger.Info("Processing news groups", zap.Int("count", len(ids)))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, id := range ids {
		group := groups[id]
		queued := len(ids) - i
		g.Go(func() error {
			p.processGroup(ctx, group, queued)
			return nil
		})
	}
	_ = g.Wait()

	return len(ids), nil
}

// processGroup produces exactly one outcome notification for the group.
func (p *Processor) processGroup(ctx context.Context, group models.NewsGroup, queued int) {
	handle := p.presenter.Progress(ctx, group.GroupID, queued)

	sess, err := p.workflow.Start(ctx, group)
	switch {
	case err != nil:
		p.logger.Error("Failed to process group", zap.String("group_id", group.GroupID), zap.Error(err))
		p.presenter.Failed(ctx, handle, group.GroupID, err)
	case sess.State == review.StateRejected:
		p.presenter.Rejected(ctx, handle, sess)
	default:
		p.presenter.Draft(ctx, handle, sess)
	}
}
