// Package review implements the per-group review session state machine and
// the in-memory store that guarantees one live session per group.
package review

import (
	"time"

	"github.com/dnodevkis/tg-news-bot/internal/models"
)

// State is a review session state.
type State string

const (
	StateGenerating              State = "GENERATING"
	StateAwaitingDecision        State = "AWAITING_DECISION"
	StateRegeneratingText        State = "REGENERATING_TEXT"
	StateRegeneratingImage       State = "REGENERATING_IMAGE"
	StateAwaitingScheduleTime    State = "AWAITING_SCHEDULE_TIME"
	StateAwaitingScheduleConfirm State = "AWAITING_SCHEDULE_CONFIRM"
	StatePublished               State = "PUBLISHED"
	StateRejected                State = "REJECTED"
	StateScheduled               State = "SCHEDULED"
)

// Terminal reports whether a session in this state is destroyed on release.
func (s State) Terminal() bool {
	switch s {
	case StatePublished, StateRejected, StateScheduled:
		return true
	}
	return false
}

// Session is the live review record of one group.
type Session struct {
	ID           string               `json:"id"`
	GroupID      string               `json:"group_id"`
	State        State                `json:"state"`
	Group        models.NewsGroup     `json:"-"`
	Result       *models.EditorResult `json:"result,omitempty"`
	ImageURL     string               `json:"image_url,omitempty"`
	Slots        []time.Time          `json:"slots,omitempty"`
	ScheduledFor time.Time            `json:"scheduled_for,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Post returns the publishable payload of an approved session.
func (s *Session) Post() models.Post {
	p := models.Post{GroupID: s.GroupID, ImageURL: s.ImageURL}
	if s.Result != nil && s.Result.Post != nil {
		p.Title = s.Result.Post.Title
		p.Body = s.Result.Post.Body
	}
	return p
}

// Reason returns the editor's denial reason, if any.
func (s *Session) Reason() string {
	if s.Result == nil {
		return ""
	}
	return s.Result.Reason
}

func (s *Session) clone() *Session {
	c := *s
	if s.Slots != nil {
		c.Slots = append([]time.Time(nil), s.Slots...)
	}
	return &c
}
