package session

import (
	"fmt"
	"sync"
	"time"
)

// Timer counts an exam attempt down in whole seconds and fires OnTimeEnd
// exactly once when it reaches zero — unless the submitting guard reports a
// submission already in flight, in which case expiry is suppressed and the
// submission wins the race.
type Timer struct {
	mu        sync.Mutex
	remaining int
	fired     bool
	stopped   bool

	interval   time.Duration
	ticker     *time.Ticker
	done       chan struct{}
	submitting func() bool
	onTick     func(remaining int)
	onTimeEnd  func()
}

// TimerConfig configures a countdown timer. OnTick and OnTimeEnd run on the
// timer's own goroutine.
type TimerConfig struct {
	DurationMinutes int
	// DurationSeconds overrides DurationMinutes when positive. Reconnects
	// resume mid-attempt with second precision.
	DurationSeconds int
	// TickInterval defaults to one second. Tests shorten it.
	TickInterval time.Duration
	// Submitting is consulted at expiry; a true result suppresses OnTimeEnd.
	Submitting func() bool
	OnTick     func(remaining int)
	OnTimeEnd  func()
}

// NewTimer creates a stopped timer initialized to DurationMinutes*60 seconds.
func NewTimer(cfg TimerConfig) *Timer {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	submitting := cfg.Submitting
	if submitting == nil {
		submitting = func() bool { return false }
	}
	remaining := cfg.DurationMinutes * 60
	if cfg.DurationSeconds > 0 {
		remaining = cfg.DurationSeconds
	}
	return &Timer{
		remaining:  remaining,
		interval:   interval,
		submitting: submitting,
		onTick:     cfg.OnTick,
		onTimeEnd:  cfg.OnTimeEnd,
	}
}

// Start begins ticking. A timer that is already out of time fires OnTimeEnd
// immediately instead of ticking: a resume after the clock ran out must not
// grant more time. Calling Start on a running or stopped timer is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	if t.ticker != nil || t.stopped {
		t.mu.Unlock()
		return
	}
	if t.remaining <= 0 {
		var fire func()
		if !t.fired && !t.submitting() {
			t.fired = true
			fire = t.onTimeEnd
		}
		t.mu.Unlock()
		if fire != nil {
			go fire()
		}
		return
	}
	t.ticker = time.NewTicker(t.interval)
	t.done = make(chan struct{})
	go t.run(t.ticker, t.done)
	t.mu.Unlock()
}

func (t *Timer) run(ticker *time.Ticker, done chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if expired := t.tick(); expired {
				return
			}
		}
	}
}

// tick decrements once and handles expiry. Returns true when the timer is
// finished and the goroutine should exit.
func (t *Timer) tick() bool {
	t.mu.Lock()
	if t.stopped || t.remaining <= 0 {
		t.mu.Unlock()
		return true
	}
	t.remaining--
	remaining := t.remaining
	onTick := t.onTick

	var fire func()
	if remaining == 0 && !t.fired && !t.submitting() {
		t.fired = true
		fire = t.onTimeEnd
	}
	t.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if fire != nil {
		fire()
	}
	return remaining == 0
}

// Remaining returns the current remaining seconds.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Reset re-initializes the countdown from a new duration and resumes ticking
// if the timer was running. The expiry callback becomes armed again.
func (t *Timer) Reset(durationMinutes int) {
	t.mu.Lock()
	running := t.ticker != nil
	t.stopReaderLocked()
	t.remaining = durationMinutes * 60
	t.fired = false
	t.stopped = false
	t.mu.Unlock()

	if running {
		t.Start()
	}
}

// Stop ceases ticking and releases the underlying ticker. Idempotent.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopReaderLocked()
	t.stopped = true
}

func (t *Timer) stopReaderLocked() {
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.done)
		t.ticker = nil
		t.done = nil
	}
}

// FormatRemaining renders seconds as MM:SS, or HH:MM:SS from one hour up.
// Negative input clamps to 00:00.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
