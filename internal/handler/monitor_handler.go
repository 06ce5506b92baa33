package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorSubscriber opens the live event feed of an exam.
type MonitorSubscriber interface {
	Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub
}

// MonitorHandler streams live session activity of an exam to admins.
type MonitorHandler struct {
	examService    *service.ExamService
	sessionService *service.ExamSessionService
	subscriber     MonitorSubscriber
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	examService *service.ExamService,
	sessionService *service.ExamSessionService,
	subscriber MonitorSubscriber,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		examService:    examService,
		sessionService: sessionService,
		subscriber:     subscriber,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// monitorStats summarises the sessions of an exam.
type monitorStats struct {
	TotalJoined     int `json:"total_joined"`
	TotalInProgress int `json:"total_in_progress"`
	TotalCompleted  int `json:"total_completed"`
	TotalViolations int `json:"total_violations"`
}

func summarise(sessions []model.ExamSession) monitorStats {
	st := monitorStats{TotalJoined: len(sessions)}
	for _, s := range sessions {
		if s.InProgress() {
			st.TotalInProgress++
		} else {
			st.TotalCompleted++
		}
		st.TotalViolations += s.TotalViolations
	}
	return st
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:id/monitor
// Server-sent events: an initial snapshot, every published session event,
// periodic refreshes while activity is seen, and keep-alive pings.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, exam)

	pubsub := h.subscriber.Subscribe(reqCtx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refresh queries until something happens on the channel.
	dirty := false

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON directly; the publisher already encoded it.
			_, _ = c.Writer.Write([]byte("data: " + msg.Payload + "\n\n"))
			c.Writer.Flush()
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = false
			h.sendRefresh(c, reqCtx, examID)

		case <-keepAliveTicker.C:
			c.SSEvent("message", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes the first SSE event with the exam and its sessions.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, exam *model.Exam) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	sessions, err := h.sessionService.ListByExam(ctx, exam.ID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to load sessions for monitor snapshot")
		sessions = []model.ExamSession{}
	}

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"exam": gin.H{
				"id":             exam.ID,
				"title":          exam.Title,
				"duration":       exam.DurationMinutes,
				"max_violations": exam.MaxViolations,
			},
			"stats":    summarise(sessions),
			"sessions": sessions,
		},
	})
	c.Writer.Flush()
}

// sendRefresh re-reads the sessions and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	sessions, err := h.sessionService.ListByExam(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch sessions for refresh")
		return
	}

	progress := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		progress = append(progress, gin.H{
			"session_id":            s.ID,
			"student_id":            s.StudentID,
			"status":                s.Status,
			"completion_percentage": s.CompletionPercentage,
			"total_violations":      s.TotalViolations,
		})
	}

	c.SSEvent("message", gin.H{
		"type":     "refresh",
		"stats":    summarise(sessions),
		"sessions": progress,
	})
	c.Writer.Flush()
}
