package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/models"
	"github.com/dnodevkis/tg-news-bot/internal/review"
)

// StatsSource provides report counters.
type StatsSource interface {
	Stats(ctx context.Context) (*models.ReportStats, error)
}

// UpcomingSource lists scheduled posts that are not yet published.
type UpcomingSource interface {
	ListUpcoming(ctx context.Context) ([]models.ScheduledPost, error)
}

// SessionSource lists live review sessions.
type SessionSource interface {
	List() []*review.Session
}

// Pipeline exposes the polling loop's state and manual trigger.
type Pipeline interface {
	CheckNow() bool
	LastRun() time.Time
	Busy() bool
}

type StatusHandler interface {
	Health(c *gin.Context)
	GetStatus(c *gin.Context)
	GetScheduled(c *gin.Context)
	GetSessions(c *gin.Context)
	TriggerCheck(c *gin.Context)
}

type statusHandler struct {
	stats    StatsSource
	upcoming UpcomingSource
	sessions SessionSource
	pipeline Pipeline
	logger   *zap.Logger
}

func NewStatusHandler(stats StatsSource, upcoming UpcomingSource, sessions SessionSource, pipeline Pipeline, logger *zap.Logger) StatusHandler {
	return &statusHandler{
		stats:    stats,
		upcoming: upcoming,
		sessions: sessions,
		pipeline: pipeline,
		logger:   logger,
	}
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Reports        *models.ReportStats `json:"reports"`
	LiveSessions   int                 `json:"live_sessions"`
	PipelineBusy   bool                `json:"pipeline_busy"`
	LastPipelineAt *time.Time          `json:"last_pipeline_run,omitempty"`
}

// Health handles GET /health
func (h *statusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus handles GET /api/v1/status
func (h *statusHandler) GetStatus(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get report stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve status"})
		return
	}

	resp := StatusResponse{
		Reports:      stats,
		LiveSessions: len(h.sessions.List()),
		PipelineBusy: h.pipeline.Busy(),
	}
	if last := h.pipeline.LastRun(); !last.IsZero() {
		resp.LastPipelineAt = &last
	}
	c.JSON(http.StatusOK, resp)
}

// GetScheduled handles GET /api/v1/scheduled
func (h *statusHandler) GetScheduled(c *gin.Context) {
	posts, err := h.upcoming.ListUpcoming(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list scheduled posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve scheduled posts"})
		return
	}
	if posts == nil {
		posts = []models.ScheduledPost{}
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// GetSessions handles GET /api/v1/sessions
func (h *statusHandler) GetSessions(c *gin.Context) {
	sessions := h.sessions.List()
	if sessions == nil {
		sessions = []*review.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// TriggerCheck handles POST /api/v1/check
func (h *statusHandler) TriggerCheck(c *gin.Context) {
	if !h.pipeline.CheckNow() {
		c.JSON(http.StatusConflict, gin.H{"error": "A check is already pending"})
		return
	}
	h.logger.Info("Manual check requested over API", zap.String("subject", c.GetString("subject")))
	c.JSON(http.StatusAccepted, gin.H{"message": "Check started"})
}
