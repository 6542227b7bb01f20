package session

import (
	"sync"
	"testing"
	"time"
)

func TestTimer_CountsDownAndFiresOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		ticks []int
		fired int
	)

	timer := NewTimer(TimerConfig{
		DurationMinutes: 1, // 60 seconds
		TickInterval:    time.Millisecond,
		OnTick: func(remaining int) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		},
		OnTimeEnd: func() {
			mu.Lock()
			fired++
			mu.Unlock()
		},
	})

	if got := timer.Remaining(); got != 60 {
		t.Fatalf("expected 60 initial seconds, got %d", got)
	}

	timer.Start()
	defer timer.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if timer.Remaining() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Allow any trailing tick to land, then verify nothing further happens.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if fired != 1 {
		t.Fatalf("expected OnTimeEnd to fire exactly once, fired %d times", fired)
	}
	if len(ticks) != 60 {
		t.Fatalf("expected 60 ticks, got %d", len(ticks))
	}
	for i, r := range ticks {
		if r != 59-i {
			t.Fatalf("tick %d: expected remaining %d, got %d", i, 59-i, r)
		}
	}
}

func TestTimer_ExpirySuppressedWhileSubmitting(t *testing.T) {
	var (
		mu    sync.Mutex
		fired int
	)

	timer := NewTimer(TimerConfig{
		DurationMinutes: 1,
		TickInterval:    time.Millisecond,
		Submitting:      func() bool { return true },
		OnTimeEnd: func() {
			mu.Lock()
			fired++
			mu.Unlock()
		},
	})

	timer.Start()
	defer timer.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && timer.Remaining() > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 0 {
		t.Fatalf("OnTimeEnd must never fire while submitting, fired %d times", fired)
	}
}

// A timer constructed with no time left — a resume after the clock ran out —
// must expire on Start instead of running forever.
func TestTimer_StartWithNoTimeLeftExpiresImmediately(t *testing.T) {
	var (
		mu    sync.Mutex
		fired int
	)

	timer := NewTimer(TimerConfig{
		TickInterval: time.Millisecond,
		OnTimeEnd: func() {
			mu.Lock()
			fired++
			mu.Unlock()
		},
	})

	if got := timer.Remaining(); got != 0 {
		t.Fatalf("expected 0 initial seconds, got %d", got)
	}

	timer.Start()
	defer timer.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := fired
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A repeated Start must not re-arm expiry.
	timer.Start()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("expected OnTimeEnd to fire exactly once on an expired start, fired %d times", fired)
	}
}

func TestTimer_StartWithNoTimeLeftSuppressedWhileSubmitting(t *testing.T) {
	var (
		mu    sync.Mutex
		fired int
	)

	timer := NewTimer(TimerConfig{
		TickInterval: time.Millisecond,
		Submitting:   func() bool { return true },
		OnTimeEnd: func() {
			mu.Lock()
			fired++
			mu.Unlock()
		},
	})

	timer.Start()
	defer timer.Stop()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 0 {
		t.Fatalf("OnTimeEnd must never fire while submitting, fired %d times", fired)
	}
}

func TestTimer_StopCeasesTicking(t *testing.T) {
	timer := NewTimer(TimerConfig{
		DurationMinutes: 10,
		TickInterval:    time.Millisecond,
	})
	timer.Start()
	time.Sleep(20 * time.Millisecond)
	timer.Stop()

	frozen := timer.Remaining()
	time.Sleep(30 * time.Millisecond)
	if got := timer.Remaining(); got != frozen {
		t.Fatalf("timer kept ticking after Stop: %d -> %d", frozen, got)
	}
}

func TestTimer_ResetRestartsFromNewDuration(t *testing.T) {
	timer := NewTimer(TimerConfig{
		DurationMinutes: 1,
		TickInterval:    time.Millisecond,
	})
	timer.Start()
	time.Sleep(20 * time.Millisecond)

	timer.Reset(2)
	defer timer.Stop()

	if got := timer.Remaining(); got > 120 || got < 110 {
		t.Fatalf("expected remaining near 120 after reset, got %d", got)
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{seconds: -42, want: "00:00"},
		{seconds: 0, want: "00:00"},
		{seconds: 9, want: "00:09"},
		{seconds: 75, want: "01:15"},
		{seconds: 3599, want: "59:59"},
		{seconds: 3600, want: "01:00:00"},
		{seconds: 7325, want: "02:02:05"},
	}
	for _, tc := range tests {
		if got := FormatRemaining(tc.seconds); got != tc.want {
			t.Errorf("FormatRemaining(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
