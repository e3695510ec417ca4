package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/failure"
	"github.com/dnodevkis/tg-news-bot/internal/models"
)

var (
	// ErrDenied is returned when a regeneration comes back as a denial.
	ErrDenied = errors.New("editor denied the regenerated draft")
	// ErrNoImage is returned when a new illustration could not be produced.
	ErrNoImage = errors.New("illustration unavailable")
	// ErrInvalidSlot is returned for a schedule slot index that was not offered.
	ErrInvalidSlot = errors.New("invalid schedule slot")
)

// Editor produces an editorial verdict for a group.
type Editor interface {
	Generate(ctx context.Context, group models.NewsGroup) (*models.EditorResult, error)
}

// Illustrator turns an illustration prompt into an image URL, or "".
type Illustrator interface {
	Generate(ctx context.Context, prompt string) string
}

// ReportFlagger moves the posted flag of a group's reports.
type ReportFlagger interface {
	SetFlag(ctx context.Context, groupID string, posted bool) (int64, error)
}

// Publisher sends a post to the broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, post models.Post) error
}

// Scheduler persists and arms a deferred publish.
type Scheduler interface {
	Schedule(ctx context.Context, post *models.ScheduledPost) error
}

// Config holds workflow settings.
type Config struct {
	ScheduleSlots  []string
	Location       *time.Location
	PublishTimeout time.Duration
	Now            func() time.Time
}

func (c Config) withDefaults() Config {
	if len(c.ScheduleSlots) == 0 {
		c.ScheduleSlots = DefaultScheduleSlots
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Workflow drives review sessions through their transitions. Every method
// holds the group's slot for its whole duration, so transitions of one group
// never overlap while different groups proceed independently.
type Workflow struct {
	store       *Store
	editor      Editor
	illustrator Illustrator
	reports     ReportFlagger
	publisher   Publisher
	scheduler   Scheduler
	cfg         Config
	logger      *zap.Logger
}

// NewWorkflow creates a Workflow over the given store and collaborators.
func NewWorkflow(
	store *Store,
	editor Editor,
	illustrator Illustrator,
	reports ReportFlagger,
	publisher Publisher,
	scheduler Scheduler,
	cfg Config,
	logger *zap.Logger,
) *Workflow {
	return &Workflow{
		store:       store,
		editor:      editor,
		illustrator: illustrator,
		reports:     reports,
		publisher:   publisher,
		scheduler:   scheduler,
		cfg:         cfg.withDefaults(),
		logger:      logger,
	}
}

// Store returns the session store backing the workflow.
func (w *Workflow) Store() *Store {
	return w.store
}

// Start generates the first draft of a claimed group. An approved draft
// leaves the session in AWAITING_DECISION; a denial resolves it to REJECTED.
// When generation fails the session is dropped and the error returned.
func (w *Workflow) Start(ctx context.Context, group models.NewsGroup) (*Session, error) {
	sess, err := w.store.Create(group)
	if err != nil {
		return nil, err
	}

	result, err := w.editor.Generate(ctx, group)
	if err != nil {
		w.store.Delete(group.GroupID)
		return nil, failure.Wrap(group.GroupID, failure.KindEditorUnavailable, "generate", err)
	}
	sess.Result = result

	if !result.Approved() {
		sess.State = StateRejected
		w.store.Release(sess)
		// The reports stay flagged false from the claim.
		w.logger.Info("Group rejected by editor",
			zap.String("group_id", group.GroupID),
			zap.String("reason", result.Reason))
		return sess, nil
	}

	sess.ImageURL = w.illustrate(ctx, group.GroupID, result)
	sess.State = StateAwaitingDecision
	w.store.Release(sess)

	w.logger.Info("Draft ready for review",
		zap.String("group_id", group.GroupID),
		zap.Bool("has_image", sess.ImageURL != ""))
	return sess, nil
}

// Approve publishes the draft now. A failed publish keeps the session so
// the operator can try again.
func (w *Workflow) Approve(ctx context.Context, groupID string) (*Session, error) {
	sess, err := w.store.Acquire(groupID, StateAwaitingDecision)
	if err != nil {
		return nil, err
	}

	pubCtx, cancel := context.WithTimeout(ctx, w.cfg.PublishTimeout)
	err = w.publisher.Publish(pubCtx, sess.Post())
	cancel()
	if err != nil {
		w.store.Release(sess)
		w.logger.Error("Failed to publish post", zap.String("group_id", groupID), zap.Error(err))
		return sess, failure.Wrap(groupID, failure.KindPublish, "publish", err)
	}

	sess.State = StatePublished
	w.store.Release(sess)
	w.logger.Info("Post published", zap.String("group_id", groupID))

	if _, err := w.reports.SetFlag(ctx, groupID, true); err != nil {
		w.logger.Error("Failed to flag published reports", zap.String("group_id", groupID), zap.Error(err))
		return sess, failure.Wrap(groupID, failure.KindPersistence, "set_flag", err)
	}
	return sess, nil
}

// Cancel rejects the draft. The reports keep the false flag of the claim;
// reports that arrived during the review stay unflagged.
func (w *Workflow) Cancel(_ context.Context, groupID string) (*Session, error) {
	sess, err := w.store.Acquire(groupID, StateAwaitingDecision)
	if err != nil {
		return nil, err
	}

	sess.State = StateRejected
	w.store.Release(sess)
	w.logger.Info("Draft rejected by operator", zap.String("group_id", groupID))
	return sess, nil
}

// Regenerate asks the editor for a new draft and a new illustration.
// On any failure the previous draft is kept.
func (w *Workflow) Regenerate(ctx context.Context, groupID string) (*Session, error) {
	sess, err := w.store.Acquire(groupID, StateAwaitingDecision)
	if err != nil {
		return nil, err
	}
	w.store.mark(sess, StateRegeneratingText)
	defer w.store.Release(sess)

	result, err := w.editor.Generate(ctx, sess.Group)
	sess.State = StateAwaitingDecision
	if err != nil {
		w.logger.Warn("Regeneration failed, keeping previous draft", zap.String("group_id", groupID), zap.Error(err))
		return sess, failure.Wrap(groupID, failure.KindEditorUnavailable, "regenerate", err)
	}
	if !result.Approved() {
		w.logger.Info("Regenerated draft denied, keeping previous draft", zap.String("group_id", groupID))
		return sess, &failure.Error{Kind: failure.KindEditorDenied, GroupID: groupID, Op: "regenerate", Err: fmt.Errorf("%w: %s", ErrDenied, result.Reason)}
	}

	sess.Result = result
	sess.ImageURL = w.illustrate(ctx, groupID, result)
	return sess, nil
}

// RegenerateImage replaces the illustration and keeps the text.
func (w *Workflow) RegenerateImage(ctx context.Context, groupID string) (*Session, error) {
	sess, err := w.store.Acquire(groupID, StateAwaitingDecision)
	if err != nil {
		return nil, err
	}
	w.store.mark(sess, StateRegeneratingImage)
	defer w.store.Release(sess)

	url := w.illustrate(ctx, groupID, sess.Result)
	sess.State = StateAwaitingDecision
	if url == "" {
		return sess, ErrNoImage
	}
	sess.ImageURL = url
	return sess, nil
}

// RequestSchedule offers the next schedule slots.
func (w *Workflow) RequestSchedule(groupID string) (*Session, error) {
	sess, err := w.store.Acquire(groupID, StateAwaitingDecision)
	if err != nil {
		return nil, err
	}
	defer w.store.Release(sess)

	slots, err := Slots(w.cfg.Now(), w.cfg.ScheduleSlots, w.cfg.Location)
	if err != nil {
		return sess, err
	}
	sess.Slots = slots
	sess.State = StateAwaitingScheduleTime
	return sess, nil
}

// PickTime selects one of the offered slots by index.
func (w *Workflow) PickTime(groupID string, index int) (*Session, error) {
	sess, err := w.store.Acquire(groupID, StateAwaitingScheduleTime)
	if err != nil {
		return nil, err
	}
	defer w.store.Release(sess)

	if index < 0 || index >= len(sess.Slots) {
		return sess, ErrInvalidSlot
	}
	sess.ScheduledFor = sess.Slots[index]
	sess.State = StateAwaitingScheduleConfirm
	return sess, nil
}

// ConfirmSchedule persists the scheduled post and hands it to the scheduler.
// The reports are flagged published since the channel slot is now reserved.
func (w *Workflow) ConfirmSchedule(ctx context.Context, groupID string) (*Session, error) {
	sess, err := w.store.Acquire(groupID, StateAwaitingScheduleConfirm)
	if err != nil {
		return nil, err
	}

	post := sess.Post()
	scheduled := &models.ScheduledPost{
		GroupID:       groupID,
		ScheduledTime: sess.ScheduledFor,
		Title:         post.Title,
		Body:          post.Body,
		ImageURL:      post.ImageURL,
	}
	if err := w.scheduler.Schedule(ctx, scheduled); err != nil {
		w.store.Release(sess)
		return sess, failure.Wrap(groupID, failure.KindPersistence, "schedule", err)
	}

	sess.State = StateScheduled
	w.store.Release(sess)
	w.logger.Info("Post scheduled",
		zap.String("group_id", groupID),
		zap.Int64("scheduled_post_id", scheduled.ID),
		zap.Time("scheduled_time", scheduled.ScheduledTime))

	if _, err := w.reports.SetFlag(ctx, groupID, true); err != nil {
		w.logger.Error("Failed to flag scheduled reports", zap.String("group_id", groupID), zap.Error(err))
		return sess, failure.Wrap(groupID, failure.KindPersistence, "set_flag", err)
	}
	return sess, nil
}

// CancelSchedule abandons scheduling and drops the session without side effects.
func (w *Workflow) CancelSchedule(groupID string) (*Session, error) {
	sess, err := w.store.Acquire(groupID, StateAwaitingScheduleTime, StateAwaitingScheduleConfirm)
	if err != nil {
		return nil, err
	}
	sess.State = StateRejected
	w.store.Release(sess)
	w.logger.Info("Scheduling cancelled", zap.String("group_id", groupID))
	return sess, nil
}

func (w *Workflow) illustrate(ctx context.Context, groupID string, result *models.EditorResult) string {
	if result == nil || result.Post == nil || strings.TrimSpace(result.Post.Illustration) == "" {
		return ""
	}
	url := w.illustrator.Generate(ctx, result.Post.Illustration)
	if url == "" {
		w.logger.Warn("Continuing without illustration", zap.String("group_id", groupID))
	}
	return url
}
