package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/Soule73/examena-sub000/internal/config"
	"github.com/Soule73/examena-sub000/internal/middleware"
	"github.com/Soule73/examena-sub000/internal/model"
	"github.com/Soule73/examena-sub000/internal/response"
	"github.com/Soule73/examena-sub000/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams live attempt activity to the exam's author over SSE.
type MonitorHandler struct {
	rdb            *redis.Client
	examService    *service.ExamService
	attemptService *service.AttemptService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	attemptService *service.AttemptService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		examService:    examService,
		attemptService: attemptService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/teacher/exams/:exam_id/monitor
// Streams a snapshot followed by live started/submitted/violation events and
// periodic progress refreshes.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if exam.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendInitialSnapshot(c, reqCtx, exam, claims.UserID)

	channelName := config.CacheKey.ExamMonitorChannel(examID)
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refresh queries until the first attempt event proves there is
	// someone to watch.
	hasStudents := false

	h.log.Info().Str("exam_id", examID.String()).Msg("Teacher attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Teacher disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Events arrive pre-serialized; forward the raw JSON.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

			hasStudents = true

		case <-refreshTicker.C:
			if !hasStudents {
				continue
			}
			h.sendRefresh(c, reqCtx, examID, exam.QuestionCount)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendInitialSnapshot gathers current results and writes the first SSE event.
func (h *MonitorHandler) sendInitialSnapshot(c *gin.Context, ctx context.Context, exam *model.Exam, authorID int) {
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	results, _, err := h.attemptService.GetResults(fetchCtx, exam.ID, authorID, 1, 100)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch results for initial snapshot")
		results = nil
	}

	totalStarted := 0
	totalCompleted := 0
	students := make([]map[string]any, 0, len(results))
	for _, res := range results {
		switch {
		case res.Status == model.AssignmentStatusStarted:
			totalStarted++
		case res.Status.IsTerminalForStudent():
			totalCompleted++
		}

		students = append(students, map[string]any{
			"student_id":      res.StudentID,
			"name":            res.Name,
			"username":        res.Username,
			"status":          res.Status,
			"started_at":      res.StartedAt,
			"answered_count":  int64(0),
			"violation_count": int64(0),
		})
	}

	var totalViolations int64
	if progress, err := h.monitorService.GetStudentProgress(fetchCtx, exam.ID); err == nil {
		totalViolations = progress.TotalViolations
		for i, s := range students {
			sid, ok := s["student_id"].(int)
			if !ok {
				continue
			}
			if count, found := progress.AnsweredCounts[sid]; found {
				students[i]["answered_count"] = count
			}
			if count, found := progress.ViolationCounts[sid]; found {
				students[i]["violation_count"] = count
			}
		}
	}

	c.SSEvent("message", map[string]any{
		"type": "snapshot",
		"data": map[string]any{
			"exam": map[string]any{
				"id":              exam.ID.String(),
				"title":           exam.Title,
				"duration":        exam.DurationMinutes,
				"total_questions": exam.QuestionCount,
			},
			"stats": map[string]any{
				"total_assigned":   len(results),
				"total_started":    totalStarted,
				"total_completed":  totalCompleted,
				"total_violations": totalViolations,
			},
			"students": students,
		},
	})
	c.Writer.Flush()
}

// sendRefresh polls current progress and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID, totalQuestions int) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetStudentProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch student progress for refresh")
		return
	}

	progressData := make([]map[string]any, 0, len(progress.AnsweredCounts)+len(progress.ViolationCounts))

	for sid, answered := range progress.AnsweredCounts {
		progressData = append(progressData, map[string]any{
			"student_id":      sid,
			"answered_count":  answered,
			"violation_count": progress.ViolationCounts[sid], // 0 if missing
		})
		delete(progress.ViolationCounts, sid)
	}

	// Remaining violation-only students (already terminated or submitted).
	for sid, count := range progress.ViolationCounts {
		progressData = append(progressData, map[string]any{
			"student_id":      sid,
			"answered_count":  int64(0),
			"violation_count": count,
		})
	}

	c.SSEvent("message", map[string]any{
		"type":             "refresh",
		"total_questions":  totalQuestions,
		"total_violations": progress.TotalViolations,
		"students":         progressData,
	})
	c.Writer.Flush()
}
