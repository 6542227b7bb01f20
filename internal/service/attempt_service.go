package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Soule73/examena-sub000/internal/config"
	"github.com/Soule73/examena-sub000/internal/model"
	"github.com/Soule73/examena-sub000/internal/repository"
	"github.com/Soule73/examena-sub000/internal/scoring"
)

// Attempt domain errors.
var (
	ErrExamNotAvailable = errors.New("exam is not available")
	ErrNotAssigned      = errors.New("exam is not assigned to this student")
	ErrAttemptClosed    = errors.New("attempt is already completed")
	ErrNotReviewable    = errors.New("attempt is not awaiting review")
)

// AttemptState is the reload payload: everything the client needs to resume
// an in-progress attempt.
type AttemptState struct {
	AssignmentID     uuid.UUID              `json:"assignment_id"`
	Status           model.AssignmentStatus `json:"status"`
	SavedAnswers     model.AnswerMap        `json:"saved_answers"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	Security         model.SecurityPolicy   `json:"security"`
}

// ReviewPayload is the teacher's grading view of one attempt.
type ReviewPayload struct {
	Assignment *model.Assignment            `json:"assignment"`
	Questions  []model.Question             `json:"questions"`
	Answers    model.AnswerMap              `json:"answers"`
	Summary    scoring.Summary              `json:"summary"`
	Scores     []model.QuestionScore        `json:"scores"`
	Violations []repository.ViolationRecord `json:"violations,omitempty"`
}

// AttemptService owns the server-side lifecycle of exam attempts: start,
// live answer persistence, submission grading, violations and teacher review.
// Hot-path writes go through Redis queues; workers drain them to PostgreSQL.
type AttemptService struct {
	assignmentRepo *repository.AssignmentRepository
	answerRepo     *repository.AnswerRepository
	examService    *ExamService
	rdb            *redis.Client
	security       model.SecurityPolicy
	log            zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	assignmentRepo *repository.AssignmentRepository,
	answerRepo *repository.AnswerRepository,
	examService *ExamService,
	rdb *redis.Client,
	security model.SecurityPolicy,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		assignmentRepo: assignmentRepo,
		answerRepo:     answerRepo,
		examService:    examService,
		rdb:            rdb,
		security:       security,
		log:            log.With().Str("component", "attempt_service").Logger(),
	}
}

// publishMonitorEvent fans an attempt event out to teacher dashboards
// subscribed to the exam's monitor channel. Best-effort: monitoring never
// blocks or fails the student path.
func (s *AttemptService) publishMonitorEvent(ctx context.Context, examID uuid.UUID, event string, fields map[string]any) {
	msg := map[string]any{"type": event}
	for k, v := range fields {
		msg[k] = v
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(examID)
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Monitor publish failed")
	}
}

// SecurityPolicy returns the effective platform policy for attempts.
func (s *AttemptService) SecurityPolicy() model.SecurityPolicy {
	return s.security.Effective()
}

// GetLobby returns the student's assignments overlayed with attempt status.
func (s *AttemptService) GetLobby(ctx context.Context, studentID int) ([]model.LobbyEntry, error) {
	entries, err := s.assignmentRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if entries == nil {
		entries = []model.LobbyEntry{}
	}
	return entries, nil
}

// Assign creates assignments binding students to a published exam.
func (s *AttemptService) Assign(ctx context.Context, examID uuid.UUID, authorID int, studentIDs []int) (int, error) {
	exam, err := s.examService.GetByID(ctx, examID)
	if err != nil {
		return 0, fmt.Errorf("get exam: %w", err)
	}
	if exam.AuthorID != authorID {
		return 0, ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusPublished {
		return 0, ErrExamNotPublished
	}
	return s.assignmentRepo.Assign(ctx, examID, studentIDs)
}

// Start transitions the student's assignment to started. Idempotent: a second
// call (reconnect, second device) returns the original start time so the
// countdown cannot be reset.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.Assignment, error) {
	exam, err := s.examService.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished || !exam.AvailableAt(time.Now()) {
		return nil, ErrExamNotAvailable
	}

	assignment, err := s.assignmentRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, ErrNotAssigned
	}
	if assignment.Status.IsTerminalForStudent() {
		return nil, ErrAttemptClosed
	}

	startedAt, err := s.assignmentRepo.Start(ctx, assignment.ID)
	if err != nil {
		return nil, fmt.Errorf("start attempt: %w", err)
	}
	assignment.Status = model.AssignmentStatusStarted
	assignment.StartedAt = &startedAt

	// Cache the start time so reloads compute remaining time without a DB hit.
	startKey := config.CacheKey.AttemptStartKey(assignment.ID)
	if err := s.rdb.Set(ctx, startKey, startedAt.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("assignment_id", assignment.ID.String()).
			Msg("Failed to cache start time, state reads will fall back to DB")
	}

	s.publishMonitorEvent(ctx, examID, "started", map[string]any{
		"student_id": studentID,
	})

	return assignment, nil
}

// GetActiveAssignment retrieves the student's started assignment for an exam.
func (s *AttemptService) GetActiveAssignment(ctx context.Context, examID uuid.UUID, studentID int) (*model.Assignment, error) {
	assignment, err := s.assignmentRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, ErrNotAssigned
	}
	if assignment.Status != model.AssignmentStatusStarted {
		return nil, ErrAttemptClosed
	}
	return assignment, nil
}

// GetState assembles the reload payload: saved answers, remaining seconds and
// the security policy. Redis first, PostgreSQL as the source of truth.
func (s *AttemptService) GetState(ctx context.Context, examID uuid.UUID, studentID int) (*AttemptState, error) {
	assignment, err := s.GetActiveAssignment(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}

	exam, err := s.examService.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	answers, err := s.loadAnswers(ctx, assignment.ID)
	if err != nil {
		return nil, err
	}

	startedAt, err := s.loadStartTime(ctx, assignment)
	if err != nil {
		return nil, err
	}

	remaining := time.Until(startedAt.Add(time.Duration(exam.DurationMinutes) * time.Minute))
	if remaining < 0 {
		remaining = 0
	}

	return &AttemptState{
		AssignmentID:     assignment.ID,
		Status:           assignment.Status,
		SavedAnswers:     answers,
		RemainingSeconds: int(remaining.Seconds()),
		Security:         s.SecurityPolicy(),
	}, nil
}

// loadAnswers reads the live answer map from Redis, falling back to the
// persisted rows when the cache is cold.
func (s *AttemptService) loadAnswers(ctx context.Context, assignmentID uuid.UUID) (model.AnswerMap, error) {
	key := config.CacheKey.AttemptAnswersKey(assignmentID)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var answers model.AnswerMap
		if err := json.Unmarshal(data, &answers); err == nil {
			return answers, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get cached answers: %w", err)
	}

	answers, err := s.answerRepo.GetMap(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	return answers, nil
}

// loadStartTime reads the cached start timestamp, self-healing from the DB
// row on a cache miss.
func (s *AttemptService) loadStartTime(ctx context.Context, assignment *model.Assignment) (time.Time, error) {
	startKey := config.CacheKey.AttemptStartKey(assignment.ID)

	val, err := s.rdb.Get(ctx, startKey).Result()
	if errors.Is(err, redis.Nil) {
		if assignment.StartedAt == nil {
			return time.Time{}, errors.New("attempt has no start time")
		}
		unix := assignment.StartedAt.Unix()
		_ = s.rdb.Set(ctx, startKey, unix, 0)
		return time.Unix(unix, 0), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get start time: %w", err)
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time in cache: %w", err)
	}
	return time.Unix(unix, 0), nil
}

// ─── Live attempt writes (queued) ───────────────────────────────────

type answersQueuePayload struct {
	AssignmentID string          `json:"assignment_id"`
	Answers      model.AnswerMap `json:"answers"`
}

type violationQueuePayload struct {
	AssignmentID string `json:"assignment_id"`
	Type         string `json:"type"`
	Details      string `json:"details"`
	Timestamp    int64  `json:"timestamp"`
}

type scoreQueuePayload struct {
	AssignmentID  string  `json:"assignment_id"`
	AutoScore     float64 `json:"auto_score"`
	PendingReview bool    `json:"pending_review"`
}

type correctionsQueuePayload struct {
	AssignmentID string                `json:"assignment_id"`
	Scores       []model.QuestionScore `json:"scores"`
	FinalScore   float64               `json:"final_score"`
}

// SaveAnswers stores the attempt's full answer map in Redis and queues the
// durable write. The Redis copy is what a reload sees immediately.
func (s *AttemptService) SaveAnswers(ctx context.Context, assignmentID uuid.UUID, answers model.AnswerMap) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	if err := s.rdb.Set(ctx, config.CacheKey.AttemptAnswersKey(assignmentID), raw, 0).Err(); err != nil {
		return fmt.Errorf("cache answers: %w", err)
	}

	payload, err := json.Marshal(answersQueuePayload{
		AssignmentID: assignmentID.String(),
		Answers:      answers,
	})
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		return fmt.Errorf("queue answers: %w", err)
	}
	return nil
}

// Submit grades the attempt in memory against the cached answer key, queues
// the durable score write and closes the student's view of the attempt.
func (s *AttemptService) Submit(ctx context.Context, assignment *model.Assignment, answers model.AnswerMap) (*scoring.Summary, error) {
	questions, err := s.examService.GetQuestions(ctx, assignment.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	summary := scoring.Summarize(questions, answers, nil, model.HasTextQuestion(questions))

	// The final answer map is authoritative; persist it ahead of the score.
	if err := s.SaveAnswers(ctx, assignment.ID, answers); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(scoreQueuePayload{
		AssignmentID:  assignment.ID.String(),
		AutoScore:     summary.Score,
		PendingReview: summary.PendingReview,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal score payload: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, payload).Err(); err != nil {
		return nil, fmt.Errorf("queue score: %w", err)
	}

	s.publishMonitorEvent(ctx, assignment.ExamID, "submitted", map[string]any{
		"student_id":     assignment.StudentID,
		"auto_score":     summary.Score,
		"pending_review": summary.PendingReview,
	})

	s.log.Info().
		Str("assignment_id", assignment.ID.String()).
		Float64("auto_score", summary.Score).
		Bool("pending_review", summary.PendingReview).
		Msg("Attempt submitted")
	return &summary, nil
}

// ReportViolation queues a violation record. The worker persists the record
// and terminates the assignment.
func (s *AttemptService) ReportViolation(ctx context.Context, assignment *model.Assignment, violationType, details string, answers model.AnswerMap) error {
	// The force-saved answers ride along so nothing typed before the
	// violation is lost.
	if len(answers) > 0 {
		if err := s.SaveAnswers(ctx, assignment.ID, answers); err != nil {
			s.log.Warn().Err(err).Str("assignment_id", assignment.ID.String()).
				Msg("Failed to save answers with violation report")
		}
	}

	payload, err := json.Marshal(violationQueuePayload{
		AssignmentID: assignment.ID.String(),
		Type:         violationType,
		Details:      details,
		Timestamp:    time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal violation payload: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		return err
	}

	s.publishMonitorEvent(ctx, assignment.ExamID, "violation", map[string]any{
		"student_id":     assignment.StudentID,
		"violation_type": violationType,
	})
	return nil
}

// ─── Teacher review ─────────────────────────────────────────────────

// GetResults retrieves paginated results for one exam.
func (s *AttemptService) GetResults(ctx context.Context, examID uuid.UUID, authorID, page, perPage int) ([]repository.AssignmentResult, int64, error) {
	exam, err := s.examService.GetByID(ctx, examID)
	if err != nil {
		return nil, 0, fmt.Errorf("get exam: %w", err)
	}
	if exam.AuthorID != authorID {
		return nil, 0, ErrNotExamAuthor
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.assignmentRepo.ListByExam(ctx, examID, page, perPage)
}

// GetReview assembles the grading view: questions, recorded answers,
// per-question evaluation and the current score map.
func (s *AttemptService) GetReview(ctx context.Context, assignmentID uuid.UUID, authorID int) (*ReviewPayload, error) {
	assignment, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}

	exam, err := s.examService.GetByID(ctx, assignment.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	if !assignment.Status.IsTerminalForStudent() {
		return nil, ErrNotReviewable
	}

	return s.buildReview(ctx, assignment)
}

// GetStudentReview returns the student's own graded copy. Available once the
// assignment reaches graded, so partially corrected text scores never leak.
func (s *AttemptService) GetStudentReview(ctx context.Context, assignmentID uuid.UUID, studentID int) (*ReviewPayload, error) {
	assignment, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	if assignment.StudentID != studentID {
		return nil, ErrNotAssigned
	}
	if assignment.Status != model.AssignmentStatusGraded {
		return nil, ErrNotReviewable
	}

	return s.buildReview(ctx, assignment)
}

func (s *AttemptService) buildReview(ctx context.Context, assignment *model.Assignment) (*ReviewPayload, error) {
	questions, err := s.examService.GetQuestions(ctx, assignment.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	answers, err := s.answerRepo.GetMap(ctx, assignment.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	persisted, err := s.answerRepo.GetScores(ctx, assignment.ID)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}

	violations, err := s.answerRepo.ListViolations(ctx, assignment.ID)
	if err != nil {
		return nil, fmt.Errorf("load violations: %w", err)
	}

	scoreMap := scoring.NewScoreMap(questions, answers, persisted)
	pending := assignment.Status == model.AssignmentStatusPendingReview

	return &ReviewPayload{
		Assignment: assignment,
		Questions:  questions,
		Answers:    answers,
		Summary:    scoring.Summarize(questions, answers, persisted, pending),
		Scores:     scoreMap.Serialize(),
		Violations: violations,
	}, nil
}

// SaveCorrections clamps and queues teacher-entered scores. The worker
// persists them and transitions the assignment to graded.
func (s *AttemptService) SaveCorrections(ctx context.Context, assignmentID uuid.UUID, authorID int, entered []model.QuestionScore) (*scoring.Summary, error) {
	assignment, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}

	exam, err := s.examService.GetByID(ctx, assignment.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	if !assignment.Status.IsTerminalForStudent() {
		return nil, ErrNotReviewable
	}

	questions, err := s.examService.GetQuestions(ctx, assignment.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	answers, err := s.answerRepo.GetMap(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	persisted, err := s.answerRepo.GetScores(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}

	// Clamping happens in the score map; out-of-range input is corrected,
	// never rejected.
	scoreMap := scoring.NewScoreMap(questions, answers, persisted)
	for _, entry := range entered {
		scoreMap.Set(entry.QuestionID, entry.Score)
	}

	payload, err := json.Marshal(correctionsQueuePayload{
		AssignmentID: assignmentID.String(),
		Scores:       scoreMap.Serialize(),
		FinalScore:   scoreMap.Total(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal corrections payload: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistCorrectionsQueue, payload).Err(); err != nil {
		return nil, fmt.Errorf("queue corrections: %w", err)
	}

	final := map[uuid.UUID]float64{}
	for _, sc := range scoreMap.Serialize() {
		final[sc.QuestionID] = sc.Score
	}
	summary := scoring.Summarize(questions, answers, final, false)
	return &summary, nil
}
