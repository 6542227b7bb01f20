package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Soule73/examena-sub000/internal/model"
)

// stubBackend records every collaborator call for one attempt.
type stubBackend struct {
	mu         sync.Mutex
	saves      []model.AnswerMap
	submits    []model.AnswerMap
	reports    []ViolationReport
	abandons   int
	submitErr  error
	saveErr    error
	abandoned  chan struct{}
	submitOnce sync.Once
}

func newStubBackend() *stubBackend {
	return &stubBackend{abandoned: make(chan struct{})}
}

func (b *stubBackend) SaveAnswers(_ context.Context, answers model.AnswerMap) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.saves = append(b.saves, answers)
	return nil
}

func (b *stubBackend) Submit(_ context.Context, answers model.AnswerMap) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		err := b.submitErr
		b.submitErr = nil // next attempt succeeds
		return err
	}
	b.submits = append(b.submits, answers)
	return nil
}

func (b *stubBackend) ReportViolation(_ context.Context, report ViolationReport) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reports = append(b.reports, report)
	return nil
}

func (b *stubBackend) Abandon(context.Context) error {
	b.mu.Lock()
	b.abandons++
	b.mu.Unlock()
	b.submitOnce.Do(func() { close(b.abandoned) })
	return nil
}

func (b *stubBackend) snapshot() (saves, submits []model.AnswerMap, reports []ViolationReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.AnswerMap(nil), b.saves...),
		append([]model.AnswerMap(nil), b.submits...),
		append([]ViolationReport(nil), b.reports...)
}

// stubDisplay records fullscreen requests.
type stubDisplay struct {
	mu       sync.Mutex
	enters   int
	exits    int
	enterErr error
}

func (d *stubDisplay) EnterFullscreen(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enters++
	return d.enterErr
}

func (d *stubDisplay) ExitFullscreen(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exits++
	return nil
}

func (d *stubDisplay) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enters, d.exits
}

func testQuestions() []model.Question {
	q1 := model.Question{ID: uuid.New(), Type: model.QuestionTypeOneChoice, Points: 5}
	q1.Choices = []model.Choice{
		{ID: uuid.New(), QuestionID: q1.ID, IsCorrect: true},
		{ID: uuid.New(), QuestionID: q1.ID},
	}
	q2 := model.Question{ID: uuid.New(), Type: model.QuestionTypeText, Points: 5}
	return []model.Question{q1, q2}
}

func testConfig(questions []model.Question) Config {
	return Config{
		DurationMinutes: 30,
		Policy: model.SecurityPolicy{
			RequireFullscreen: true,
			DetectTabSwitch:   true,
			MaxViolations:     3,
		},
		Questions: questions,
		Autosave: AutosaveConfig{
			DebounceWindow: 20 * time.Millisecond,
			FlushInterval:  time.Hour,
			MaxRetries:     1,
			BackoffBase:    2,
			BackoffUnit:    time.Millisecond,
		},
		TickInterval: time.Millisecond,
	}
}

func TestSession_StartOpensGateAndRunsTimer(t *testing.T) {
	backend := newStubBackend()
	display := &stubDisplay{}
	s := New(testConfig(testQuestions()), backend, display, zerolog.Nop())
	defer s.Close()

	if s.GateOpen() {
		t.Fatal("gate must be closed before Start when fullscreen is required")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.GateOpen() || s.State() != StateInProgress {
		t.Fatalf("expected open gate and in_progress, got gate=%v state=%s", s.GateOpen(), s.State())
	}
	if enters, _ := display.counts(); enters != 1 {
		t.Fatalf("expected 1 fullscreen entry, got %d", enters)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestSession_FullscreenEntryFailureIsPermissive(t *testing.T) {
	backend := newStubBackend()
	display := &stubDisplay{enterErr: errors.New("permission denied")}
	s := New(testConfig(testQuestions()), backend, display, zerolog.Nop())
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.GateOpen() {
		t.Fatal("a denied fullscreen request must still open the gate")
	}
}

func TestSession_AnswerEditUpdatesStoreAndDebounces(t *testing.T) {
	questions := testQuestions()
	backend := newStubBackend()
	s := New(testConfig(questions), backend, &stubDisplay{}, zerolog.Nop())
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	choice := questions[0].Choices[0].ID
	if err := s.SetAnswer(questions[0].ID, model.ChoiceAnswer(choice)); err != nil {
		t.Fatalf("set answer: %v", err)
	}

	// Store update is synchronous.
	if got, ok := s.Answers()[questions[0].ID]; !ok || got.ChoiceID == nil || *got.ChoiceID != choice {
		t.Fatalf("store must reflect the edit immediately, got %+v", got)
	}

	// Debounced save carries the full map.
	time.Sleep(100 * time.Millisecond)
	saves, _, _ := backend.snapshot()
	if len(saves) != 1 {
		t.Fatalf("expected 1 debounced save, got %d", len(saves))
	}
	if v, ok := saves[0][questions[0].ID]; !ok || v.ChoiceID == nil || *v.ChoiceID != choice {
		t.Fatalf("save payload must carry the latest answer, got %+v", saves[0])
	}
}

func TestSession_AnswerShapeValidated(t *testing.T) {
	questions := testQuestions()
	s := New(testConfig(questions), newStubBackend(), &stubDisplay{}, zerolog.Nop())
	defer s.Close()
	_ = s.Start(context.Background())

	// Choice set on a one_choice question.
	err := s.SetAnswer(questions[0].ID, model.MultiChoiceAnswer([]uuid.UUID{uuid.New()}))
	if !errors.Is(err, ErrAnswerShape) {
		t.Fatalf("expected ErrAnswerShape, got %v", err)
	}

	if err := s.SetAnswer(uuid.New(), model.TextAnswer("x")); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("expected ErrUnknownQuestion, got %v", err)
	}
}

func TestSession_SubmitFlushesThenSubmits(t *testing.T) {
	questions := testQuestions()
	backend := newStubBackend()
	display := &stubDisplay{}
	s := New(testConfig(questions), backend, display, zerolog.Nop())
	defer s.Close()
	_ = s.Start(context.Background())

	_ = s.SetAnswer(questions[1].ID, model.TextAnswer("ma réponse"))

	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("expected submitted, got %s", s.State())
	}

	saves, submits, _ := backend.snapshot()
	if len(saves) != 1 {
		t.Fatalf("expected exactly 1 save (forced, pending debounce cancelled), got %d", len(saves))
	}
	if len(submits) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submits))
	}
	if v := submits[0][questions[1].ID]; v.Text != "ma réponse" {
		t.Fatalf("submission must carry the answer map, got %+v", submits[0])
	}
	if _, exits := display.counts(); exits != 1 {
		t.Fatalf("submit must exit fullscreen, got %d exits", exits)
	}

	// Terminal state: no further edits.
	if err := s.SetAnswer(questions[1].ID, model.TextAnswer("late")); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress after submit, got %v", err)
	}
}

func TestSession_SubmitFailureIsRetryable(t *testing.T) {
	questions := testQuestions()
	backend := newStubBackend()
	backend.submitErr = errors.New("gateway timeout")
	display := &stubDisplay{}
	s := New(testConfig(questions), backend, display, zerolog.Nop())
	defer s.Close()
	_ = s.Start(context.Background())

	if err := s.Submit(context.Background()); err == nil {
		t.Fatal("expected submit failure")
	}
	if s.State() != StateInProgress {
		t.Fatalf("failed submit must drop back to in_progress, got %s", s.State())
	}
	if _, exits := display.counts(); exits != 1 {
		t.Fatal("fullscreen must be exited even on submit failure")
	}

	// Retry succeeds.
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("expected submitted after retry, got %s", s.State())
	}
}

func TestSession_SubmitProceedsWhenForceSaveFails(t *testing.T) {
	questions := testQuestions()
	backend := newStubBackend()
	backend.saveErr = errors.New("storage down")
	s := New(testConfig(questions), backend, &stubDisplay{}, zerolog.Nop())
	defer s.Close()
	_ = s.Start(context.Background())

	_ = s.SetAnswer(questions[1].ID, model.TextAnswer("x"))

	// Losing the save must not block the student from submitting.
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit must proceed despite save failure: %v", err)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("expected submitted, got %s", s.State())
	}
}

// Timer reaches zero with no answers: submit fires automatically with an
// empty map and no further tick occurs.
func TestSession_TimerExpiryAutoSubmits(t *testing.T) {
	questions := testQuestions()
	cfg := testConfig(questions)
	cfg.DurationMinutes = 1

	backend := newStubBackend()
	s := New(cfg, backend, &stubDisplay{}, zerolog.Nop())
	defer s.Close()
	_ = s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.State() != StateSubmitted {
		time.Sleep(5 * time.Millisecond)
	}

	if s.State() != StateSubmitted {
		t.Fatalf("expected auto-submitted state, got %s", s.State())
	}

	_, submits, _ := backend.snapshot()
	if len(submits) != 1 {
		t.Fatalf("expected exactly 1 auto-submission, got %d", len(submits))
	}
	if len(submits[0]) != 0 {
		t.Fatalf("expected an empty answer map, got %d entries", len(submits[0]))
	}

	frozen := s.Remaining()
	time.Sleep(30 * time.Millisecond)
	if got := s.Remaining(); got != frozen {
		t.Fatalf("timer kept ticking after auto-submit: %d -> %d", frozen, got)
	}
}

// A student who lets the clock run out while disconnected, then reconnects,
// resumes with zero seconds remaining. The attempt must auto-submit the
// persisted answers instead of granting unlimited time, the state observer
// must see the transition (no client message triggers it), and late edits
// must be refused.
func TestSession_ExpiredResumeAutoSubmits(t *testing.T) {
	questions := testQuestions()
	cfg := testConfig(questions)
	cfg.DurationMinutes = 0
	cfg.RemainingSeconds = 0

	var (
		mu       sync.Mutex
		observed []State
	)
	cfg.OnStateChange = func(st State) {
		mu.Lock()
		observed = append(observed, st)
		mu.Unlock()
	}

	backend := newStubBackend()
	s := New(cfg, backend, &stubDisplay{}, zerolog.Nop())
	defer s.Close()

	s.Seed(model.AnswerMap{questions[1].ID: model.TextAnswer("saved before the cut")})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.State() != StateSubmitted {
		time.Sleep(5 * time.Millisecond)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("expired resume must auto-submit, got %s", s.State())
	}

	_, submits, _ := backend.snapshot()
	if len(submits) != 1 {
		t.Fatalf("expected exactly 1 auto-submission, got %d", len(submits))
	}
	if v := submits[0][questions[1].ID]; v.Text != "saved before the cut" {
		t.Fatalf("auto-submission must carry the seeded answers, got %+v", submits[0])
	}

	mu.Lock()
	sawSubmitted := false
	for _, st := range observed {
		if st == StateSubmitted {
			sawSubmitted = true
		}
	}
	mu.Unlock()
	if !sawSubmitted {
		t.Fatal("state observer must see the server-side submitted transition")
	}

	if err := s.SetAnswer(questions[1].ID, model.TextAnswer("late")); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress after expiry, got %v", err)
	}
}

// Tab switch while monitored: the attempt terminates, the answers are
// force-saved once, the report carries type tab_switch, and fullscreen exit
// is attempted.
func TestSession_TabSwitchTerminates(t *testing.T) {
	questions := testQuestions()
	backend := newStubBackend()
	display := &stubDisplay{}
	s := New(testConfig(questions), backend, display, zerolog.Nop())
	defer s.Close()
	_ = s.Start(context.Background())

	_ = s.SetAnswer(questions[1].ID, model.TextAnswer("en cours"))

	s.Signal(SignalTabSwitch, "visibility hidden")

	if s.State() != StateTerminated {
		t.Fatalf("expected terminated_by_violation, got %s", s.State())
	}

	saves, _, reports := backend.snapshot()
	if len(saves) != 1 {
		t.Fatalf("expected exactly 1 force-save, got %d", len(saves))
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 violation report, got %d", len(reports))
	}
	if reports[0].Type != ViolationTabSwitch {
		t.Fatalf("expected tab_switch report, got %s", reports[0].Type)
	}
	if v := reports[0].Answers[questions[1].ID]; v.Text != "en cours" {
		t.Fatal("report must carry the answers held at the moment of violation")
	}
	if _, exits := display.counts(); exits != 1 {
		t.Fatalf("termination must attempt a fullscreen exit, got %d", exits)
	}

	// Terminal: nothing further is possible.
	if err := s.Submit(context.Background()); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress after termination, got %v", err)
	}
	s.Signal(SignalTabSwitch, "again")
	if got := s.ViolationCount(); got != 1 {
		t.Fatalf("signals after termination must be ignored, count=%d", got)
	}
}

func TestSession_AbandonIsFireAndForget(t *testing.T) {
	backend := newStubBackend()
	s := New(testConfig(testQuestions()), backend, &stubDisplay{}, zerolog.Nop())
	defer s.Close()
	_ = s.Start(context.Background())

	if err := s.Abandon(context.Background()); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if s.State() != StateAbandoned {
		t.Fatalf("expected abandoned, got %s", s.State())
	}

	select {
	case <-backend.abandoned:
	case <-time.After(time.Second):
		t.Fatal("abandon notification never reached the backend")
	}

	_, _, reports := backend.snapshot()
	if len(reports) != 0 {
		t.Fatal("abandon must bypass violation semantics")
	}
}

func TestSession_SeedLoadsOnce(t *testing.T) {
	questions := testQuestions()
	s := New(testConfig(questions), newStubBackend(), &stubDisplay{}, zerolog.Nop())
	defer s.Close()

	s.Seed(model.AnswerMap{questions[1].ID: model.TextAnswer("persisted")})
	s.Seed(model.AnswerMap{questions[1].ID: model.TextAnswer("clobber")})

	if got := s.Answers()[questions[1].ID]; got.Text != "persisted" {
		t.Fatalf("re-seed must be a no-op, got %q", got.Text)
	}
}
