// Package session implements the exam-taking attempt state machine: a
// countdown timer, a security monitor, an in-memory answer store, a debounced
// autosave pipeline and a fullscreen gate, composed by a Session orchestrator
// that owns the submit/abandon/violation-termination transitions. Every
// component is an explicit lifecycle object created for one attempt and torn
// down with it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Soule73/examena-sub000/internal/model"
)

// State is the orchestrator's current phase.
type State string

const (
	StateNotStarted State = "not_started" // blocked by the fullscreen gate
	StateInProgress State = "in_progress"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateTerminated State = "terminated_by_violation"
	StateAbandoned  State = "abandoned"
)

// Orchestration errors.
var (
	ErrNotInProgress      = errors.New("attempt is not in progress")
	ErrAlreadyStarted     = errors.New("attempt already started")
	ErrSubmitInFlight     = errors.New("a submission is already in flight")
	ErrAnswerShape        = errors.New("answer shape does not match question type")
	ErrUnknownQuestion    = errors.New("question does not belong to this exam")
	ErrSessionUnavailable = errors.New("attempt is no longer interactive")
)

// ViolationReport is sent to the backend when a critical violation or the
// blocked threshold terminates the attempt. It carries the answers held at
// the moment of violation.
type ViolationReport struct {
	Type          ViolationType   `json:"type"`
	Details       string          `json:"details"`
	Answers       model.AnswerMap `json:"answers"`
	Count         int             `json:"count"`
	SecurityScore int             `json:"security_score"`
}

// Backend is the server-side collaborator surface of one attempt. All calls
// receive the complete current answer map; SaveAnswers must be idempotent.
type Backend interface {
	SaveAnswers(ctx context.Context, answers model.AnswerMap) error
	Submit(ctx context.Context, answers model.AnswerMap) error
	ReportViolation(ctx context.Context, report ViolationReport) error
	Abandon(ctx context.Context) error
}

// Config assembles one attempt.
type Config struct {
	DurationMinutes int
	// RemainingSeconds overrides the duration when positive, so a reconnect
	// resumes the countdown instead of restarting it.
	RemainingSeconds int
	Policy           model.SecurityPolicy
	// Questions indexes the exam's questions so answer shapes can be
	// validated on every edit.
	Questions []model.Question
	Autosave  AutosaveConfig
	// TickInterval overrides the one-second timer tick in tests.
	TickInterval time.Duration
	// ExemptGrace is forwarded to the security monitor.
	ExemptGrace time.Duration

	// OnStateChange observes every transition. Runs on the goroutine that
	// caused it.
	OnStateChange func(State)
	OnTick        func(remainingSeconds int)
	OnViolation   func(v Violation)
}

// Session orchestrates one student's exam attempt.
type Session struct {
	cfg     Config
	backend Backend
	log     zerolog.Logger

	store    *AnswerStore
	pipeline *AutosavePipeline
	timer    *Timer
	monitor  *SecurityMonitor
	gate     *FullscreenGate

	questions map[uuid.UUID]model.Question

	mu        sync.Mutex
	state     State
	submitErr error
}

// New wires an attempt together. The session starts gated: call Seed with the
// persisted answers, then Start once the student passes the fullscreen gate.
func New(cfg Config, backend Backend, display Display, log zerolog.Logger) *Session {
	s := &Session{
		cfg:       cfg,
		backend:   backend,
		log:       log.With().Str("component", "exam_session").Logger(),
		store:     NewAnswerStore(),
		questions: make(map[uuid.UUID]model.Question, len(cfg.Questions)),
		state:     StateNotStarted,
	}
	for _, q := range cfg.Questions {
		s.questions[q.ID] = q
	}

	policy := cfg.Policy.Effective()

	s.pipeline = NewAutosavePipeline(cfg.Autosave, func(ctx context.Context) error {
		return backend.SaveAnswers(ctx, s.store.Snapshot())
	}, s.log)

	s.monitor = NewSecurityMonitor(MonitorConfig{
		Policy:      policy,
		ExemptGrace: cfg.ExemptGrace,
		OnViolation: s.handleViolation,
		OnBlocked:   s.handleBlocked,
	})

	s.timer = NewTimer(TimerConfig{
		DurationMinutes: cfg.DurationMinutes,
		DurationSeconds: cfg.RemainingSeconds,
		TickInterval:    cfg.TickInterval,
		Submitting:      s.submitGuard,
		OnTick:          cfg.OnTick,
		OnTimeEnd:       s.timeExpired,
	})

	s.gate = NewFullscreenGate(policy.RequireFullscreen, display, s.log)

	return s
}

// Seed loads previously persisted answers. Effective once.
func (s *Session) Seed(saved model.AnswerMap) {
	s.store.Seed(saved)
}

// Start passes the fullscreen gate (entering fullscreen when required; entry
// failure is permissive) and begins the countdown.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	s.gate.Enter(ctx)

	s.setState(StateInProgress)
	s.timer.Start()
	return nil
}

// SetAnswer records an edit. The store update is synchronous, so the caller
// sees the new value immediately. The debounced save is scheduled as an
// independent second effect of the same action.
func (s *Session) SetAnswer(questionID uuid.UUID, value model.AnswerValue) error {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	s.mu.Unlock()

	q, ok := s.questions[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if !value.MatchesType(q.Type) {
		return ErrAnswerShape
	}

	s.store.Set(questionID, value)
	s.pipeline.Schedule()
	return nil
}

// Signal delivers an environment signal to the security monitor. Signals are
// only meaningful while the attempt is interactive.
func (s *Session) Signal(kind SignalKind, details string) {
	s.mu.Lock()
	active := s.state == StateInProgress || s.state == StateNotStarted
	s.mu.Unlock()
	if !active {
		return
	}
	s.monitor.HandleSignal(kind, details)
}

// Submit finalizes the attempt: force-flush first (losing the save must not
// block the student, so an exhausted-retries failure still proceeds), then
// the submission itself. Fullscreen is exited on success and failure alike.
// A failed submission is retryable: the attempt drops back to in-progress.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateInProgress:
	case StateSubmitting:
		s.mu.Unlock()
		return ErrSubmitInFlight
	default:
		s.mu.Unlock()
		return ErrNotInProgress
	}
	s.state = StateSubmitting
	s.mu.Unlock()
	s.notify(StateSubmitting)

	if err := s.pipeline.ForceFlush(ctx); err != nil {
		s.log.Warn().Err(err).Msg("force save failed, submitting anyway")
	}

	err := s.backend.Submit(ctx, s.store.Snapshot())

	s.monitor.MarkProgrammaticExit()
	s.gate.Exit(ctx)

	if err != nil {
		s.mu.Lock()
		s.state = StateInProgress
		s.submitErr = err
		s.mu.Unlock()
		s.notify(StateInProgress)
		return err
	}

	s.setState(StateSubmitted)
	s.teardown()
	return nil
}

// Abandon is the explicit early exit from an in-progress attempt. It is
// fire-and-forget and bypasses violation semantics entirely.
func (s *Session) Abandon(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateInProgress && s.state != StateNotStarted {
		s.mu.Unlock()
		return ErrSessionUnavailable
	}
	s.state = StateAbandoned
	s.mu.Unlock()
	s.notify(StateAbandoned)

	s.teardown()

	go func() {
		if err := s.backend.Abandon(context.WithoutCancel(ctx)); err != nil {
			s.log.Debug().Err(err).Msg("abandon notification failed")
		}
	}()
	return nil
}

// Close tears the attempt down on connection loss. The ephemeral answer map
// is discarded; the server's persisted answers remain the source of truth.
func (s *Session) Close() {
	s.teardown()
}

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubmitError returns the last submission failure, if any.
func (s *Session) SubmitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitErr
}

// Remaining returns the countdown's remaining seconds.
func (s *Session) Remaining() int {
	return s.timer.Remaining()
}

// Answers returns a snapshot of the current answer map.
func (s *Session) Answers() model.AnswerMap {
	return s.store.Snapshot()
}

// ViolationCount returns the number of recorded violations.
func (s *Session) ViolationCount() int {
	return s.monitor.Count()
}

// GateOpen reports whether questions may be rendered.
func (s *Session) GateOpen() bool {
	return s.gate.Open()
}

// submitGuard suppresses timer expiry once a submission is in flight or the
// attempt reached a terminal state: whichever reaches the guard first wins.
func (s *Session) submitGuard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateInProgress
}

// timeExpired is the timer's terminal callback: auto-submit with whatever
// answers are currently held.
func (s *Session) timeExpired() {
	if err := s.Submit(context.Background()); err != nil &&
		!errors.Is(err, ErrNotInProgress) && !errors.Is(err, ErrSubmitInFlight) {
		s.log.Warn().Err(err).Msg("auto-submit on expiry failed")
	}
}

// criticalViolation reports whether a violation type forces termination.
func criticalViolation(t ViolationType) bool {
	return t == ViolationTabSwitch || t == ViolationFullscreenExit
}

func (s *Session) handleViolation(v Violation) {
	if s.cfg.OnViolation != nil {
		s.cfg.OnViolation(v)
	}
	if criticalViolation(v.Type) {
		s.terminate(v)
	}
}

func (s *Session) handleBlocked() {
	vs := s.monitor.Violations()
	last := Violation{Type: ViolationTabSwitch, Details: "violation threshold exceeded"}
	if len(vs) > 0 {
		last = vs[len(vs)-1]
	}
	s.terminate(last)
}

// terminate ends the attempt after a critical violation: force-flush the
// answers, report the violation with whatever is held, exit fullscreen, and
// land in the terminal violation state. Report delivery is best-effort; the
// terminal state is unconditional.
func (s *Session) terminate(v Violation) {
	s.mu.Lock()
	if s.state != StateInProgress && s.state != StateNotStarted {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated
	s.mu.Unlock()
	s.notify(StateTerminated)

	ctx := context.Background()

	if err := s.pipeline.ForceFlush(ctx); err != nil {
		s.log.Warn().Err(err).Msg("force save before violation report failed")
	}

	report := ViolationReport{
		Type:          v.Type,
		Details:       v.Details,
		Answers:       s.store.Snapshot(),
		Count:         s.monitor.Count(),
		SecurityScore: SecurityScore(s.monitor.Count()),
	}
	if err := s.backend.ReportViolation(ctx, report); err != nil {
		s.log.Warn().Err(err).Msg("violation report delivery failed")
	}

	s.monitor.MarkProgrammaticExit()
	s.gate.Exit(ctx)

	s.teardown()
}

func (s *Session) teardown() {
	s.timer.Stop()
	s.pipeline.Close()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.notify(st)
}

func (s *Session) notify(st State) {
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(st)
	}
}
