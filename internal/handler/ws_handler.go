package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Soule73/examena-sub000/internal/config"
	"github.com/Soule73/examena-sub000/internal/middleware"
	"github.com/Soule73/examena-sub000/internal/model"
	"github.com/Soule73/examena-sub000/internal/scoring"
	"github.com/Soule73/examena-sub000/internal/service"
	"github.com/Soule73/examena-sub000/internal/session"
	ws "github.com/Soule73/examena-sub000/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler owns the per-connection attempt lifecycle: one WebSocket
// connection drives one session orchestrator.
type WSHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
	autosave       session.AutosaveConfig
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, examService *service.ExamService, cfg *config.Config, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		examService:    examService,
		autosave: session.AutosaveConfig{
			DebounceWindow: cfg.AutosaveDebounce,
			FlushInterval:  cfg.AutosaveInterval,
		},
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(cfg.AllowedOrigins),
	}
}

// wsDisplay implements session.Display by asking the client to change
// fullscreen state. The browser call itself happens client-side; the command
// is fire-and-forget.
type wsDisplay struct {
	conn *ws.Conn
}

func (d *wsDisplay) EnterFullscreen(context.Context) error {
	return d.conn.Write(ws.FullscreenCommand{Event: ws.EventPromptFullscreen})
}

func (d *wsDisplay) ExitFullscreen(context.Context) error {
	return d.conn.Write(ws.FullscreenCommand{Event: ws.EventExitFullscreen})
}

// wsBackend implements session.Backend against the attempt service, keeping
// the grading summary of a successful submission for the handler to report.
type wsBackend struct {
	attempts   *service.AttemptService
	assignment *model.Assignment
	summary    *scoring.Summary
}

func (b *wsBackend) SaveAnswers(ctx context.Context, answers model.AnswerMap) error {
	return b.attempts.SaveAnswers(ctx, b.assignment.ID, answers)
}

func (b *wsBackend) Submit(ctx context.Context, answers model.AnswerMap) error {
	summary, err := b.attempts.Submit(ctx, b.assignment, answers)
	if err != nil {
		return err
	}
	b.summary = summary
	return nil
}

func (b *wsBackend) ReportViolation(ctx context.Context, report session.ViolationReport) error {
	return b.attempts.ReportViolation(ctx, b.assignment, string(report.Type), report.Details, report.Answers)
}

func (b *wsBackend) Abandon(ctx context.Context) error {
	// The assignment stays started; the student may reconnect and resume.
	return nil
}

// AttemptStream godoc
// WS /ws/v1/student/exams/:exam_id/attempt
// Upgrades to WebSocket and runs the attempt state machine for the life of
// the connection.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(rawConn)
	defer conn.Close()

	studentID := claims.UserID
	ctx := c.Request.Context()

	state, err := h.attemptService.GetState(ctx, examID, studentID)
	if err != nil {
		conn.WriteError("no active attempt for this exam")
		return
	}

	questions, err := h.examService.GetQuestions(ctx, examID)
	if err != nil {
		conn.WriteError("exam paper unavailable")
		return
	}

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Str("assignment_id", state.AssignmentID.String()).
		Logger()

	backend := &wsBackend{attempts: h.attemptService}
	assignment, err := h.attemptService.GetActiveAssignment(ctx, examID, studentID)
	if err != nil {
		conn.WriteError("no active attempt for this exam")
		return
	}
	backend.assignment = assignment

	// The timer can submit and the security monitor can terminate without any
	// client message, so terminal transitions are pushed through the state
	// observer rather than from the read loop. lastViolation is written by
	// OnViolation and read by the terminated push on the same call stack.
	var (
		attempt       *session.Session
		lastViolation session.Violation
	)
	attempt = session.New(session.Config{
		RemainingSeconds: state.RemainingSeconds,
		Policy:           state.Security,
		Questions:        questions,
		Autosave:         h.autosave,
		OnStateChange: func(st session.State) {
			switch st {
			case session.StateSubmitted:
				conn.Write(submittedResponse(backend.summary))
				conn.Close()
			case session.StateTerminated:
				conn.Write(ws.TerminatedResponse{
					Event:          ws.EventTerminated,
					Reason:         string(lastViolation.Type),
					Details:        lastViolation.Details,
					ViolationCount: attempt.ViolationCount(),
				})
				conn.Close()
			}
		},
		OnViolation: func(v session.Violation) {
			lastViolation = v
			wsLog.Warn().Str("type", string(v.Type)).Str("details", v.Details).Msg("Violation recorded")
		},
	}, backend, &wsDisplay{conn: conn}, wsLog)
	defer attempt.Close()

	attempt.Seed(state.SavedAnswers)
	if err := attempt.Start(context.Background()); err != nil {
		conn.WriteError("attempt could not start")
		return
	}

	wsLog.Info().Int("remaining_seconds", state.RemainingSeconds).Msg("Student connected")

	for {
		var msg ws.AttemptRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, attempt, &msg)
		case ws.ActionSignal:
			// A critical signal terminates synchronously; the terminated
			// event is pushed by the state observer before Signal returns.
			attempt.Signal(session.SignalKind(msg.Signal), msg.Details)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, attempt, backend)
			if attempt.State() == session.StateSubmitted {
				return
			}
		case ws.ActionAbandon:
			_ = attempt.Abandon(context.Background())
			wsLog.Info().Msg("Attempt abandoned")
			return
		case ws.ActionPing:
			conn.Write(ws.PongResponse{Event: ws.EventPong, Remaining: attempt.Remaining()})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}

		if attempt.State() == session.StateTerminated {
			return
		}
	}
}

// handleAnswer records an edit. The store update is synchronous, so a saved
// acknowledgment can be sent as soon as the edit is accepted; the durable
// write follows through the debounced pipeline.
func (h *WSHandler) handleAnswer(conn *ws.Conn, attempt *session.Session, msg *ws.AttemptRequest) {
	if msg.Answer == nil {
		conn.WriteError("answer payload is required")
		return
	}

	if err := attempt.SetAnswer(msg.QuestionID, *msg.Answer); err != nil {
		switch {
		case errors.Is(err, session.ErrAnswerShape):
			conn.WriteError("answer shape does not match question type")
		case errors.Is(err, session.ErrUnknownQuestion):
			conn.WriteError("unknown question")
		default:
			conn.WriteError("attempt is not in progress")
		}
		return
	}

	conn.Write(ws.SavedResponse{
		Event:      ws.EventSaved,
		QuestionID: msg.QuestionID,
		Remaining:  attempt.Remaining(),
	})
}

// handleSubmit finalizes the attempt. A failed submission leaves the attempt
// in progress so the client can retry; on success the submitted event is
// pushed by the state observer before Submit returns.
func (h *WSHandler) handleSubmit(conn *ws.Conn, wsLog zerolog.Logger, attempt *session.Session, backend *wsBackend) {
	if err := attempt.Submit(context.Background()); err != nil {
		wsLog.Error().Err(err).Msg("Submit failed")
		conn.WriteError("submission failed, please retry")
		return
	}

	ev := wsLog.Info()
	if s := backend.summary; s != nil {
		ev = ev.Float64("score", s.Score).Bool("pending_review", s.PendingReview)
	}
	ev.Msg("Attempt submitted")
}

// submittedResponse builds the submitted event from a grading summary, which
// is nil when the backend never produced one.
func submittedResponse(s *scoring.Summary) ws.SubmittedResponse {
	resp := ws.SubmittedResponse{Event: ws.EventSubmitted}
	if s != nil {
		resp.Score = s.Score
		resp.TotalPoints = s.TotalPoints
		resp.Percentage = s.Percentage
		resp.PendingReview = s.PendingReview
	}
	return resp
}
