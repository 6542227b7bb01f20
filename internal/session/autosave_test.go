package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// saveRecorder counts save calls and fails the first failN of them.
type saveRecorder struct {
	mu    sync.Mutex
	calls int
	failN int
}

func (r *saveRecorder) save(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failN {
		return errors.New("connection refused")
	}
	return nil
}

func (r *saveRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func fastConfig() AutosaveConfig {
	return AutosaveConfig{
		DebounceWindow: 30 * time.Millisecond,
		FlushInterval:  time.Hour, // periodic path disabled unless a test wants it
		MaxRetries:     3,
		BackoffBase:    2,
		BackoffUnit:    time.Millisecond,
	}
}

func TestAutosave_DebounceCollapsesEdits(t *testing.T) {
	rec := &saveRecorder{}
	p := NewAutosavePipeline(fastConfig(), rec.save, zerolog.Nop())
	defer p.Close()

	for i := 0; i < 5; i++ {
		p.Schedule()
		time.Sleep(2 * time.Millisecond) // well inside the quiet period
	}

	time.Sleep(150 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Fatalf("5 edits inside the window must produce exactly 1 save, got %d", got)
	}
	if p.Dirty() {
		t.Fatal("pipeline must be clean after a successful save")
	}
}

func TestAutosave_ForceFlushSupersedesPendingSave(t *testing.T) {
	rec := &saveRecorder{}
	p := NewAutosavePipeline(fastConfig(), rec.save, zerolog.Nop())
	defer p.Close()

	p.Schedule()
	if err := p.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush failed: %v", err)
	}

	// Wait past the debounce window: the pending save must have been
	// cancelled, leaving exactly the forced one.
	time.Sleep(150 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Fatalf("expected exactly 1 save (the forced one), got %d", got)
	}
}

func TestAutosave_ForceFlushCleanIsNoop(t *testing.T) {
	rec := &saveRecorder{}
	p := NewAutosavePipeline(fastConfig(), rec.save, zerolog.Nop())
	defer p.Close()

	if err := p.ForceFlush(context.Background()); err != nil {
		t.Fatalf("clean force flush must not error: %v", err)
	}
	if got := rec.count(); got != 0 {
		t.Fatalf("clean force flush must not hit the network, got %d calls", got)
	}
}

func TestAutosave_RetriesWithBackoffThenSucceeds(t *testing.T) {
	rec := &saveRecorder{failN: 2}
	var reported int
	cfg := fastConfig()
	cfg.OnError = func(error) { reported++ }

	p := NewAutosavePipeline(cfg, rec.save, zerolog.Nop())
	defer p.Close()

	p.Schedule()
	if err := p.ForceFlush(context.Background()); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got := rec.count(); got != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", got)
	}
	if reported != 0 {
		t.Fatal("recovered failure must not reach the error callback")
	}
}

func TestAutosave_ExhaustedRetriesReportedNotThrown(t *testing.T) {
	rec := &saveRecorder{failN: 100}
	var reported int
	cfg := fastConfig()
	cfg.OnError = func(error) { reported++ }

	p := NewAutosavePipeline(cfg, rec.save, zerolog.Nop())
	defer p.Close()

	p.Schedule()
	if err := p.ForceFlush(context.Background()); err == nil {
		t.Fatal("expected an error after exhausted retries")
	}
	if got := rec.count(); got != 4 {
		t.Fatalf("expected 1 initial + 3 retries, got %d attempts", got)
	}
	if reported != 1 {
		t.Fatalf("expected exactly 1 error report, got %d", reported)
	}
	if !p.Dirty() {
		t.Fatal("failed save must leave the pipeline dirty for the next cycle")
	}
}

func TestAutosave_PeriodicFlushWhileDirty(t *testing.T) {
	rec := &saveRecorder{}
	cfg := fastConfig()
	cfg.DebounceWindow = time.Hour // debounce path disabled
	cfg.FlushInterval = 20 * time.Millisecond

	p := NewAutosavePipeline(cfg, rec.save, zerolog.Nop())
	defer p.Close()

	p.Schedule()
	time.Sleep(100 * time.Millisecond)

	if got := rec.count(); got != 1 {
		t.Fatalf("expected the periodic cycle to save exactly once, got %d", got)
	}
}

func TestAutosave_NoSaveAfterClose(t *testing.T) {
	rec := &saveRecorder{}
	p := NewAutosavePipeline(fastConfig(), rec.save, zerolog.Nop())

	p.Schedule()
	p.Close()

	time.Sleep(150 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Fatalf("no save may fire after Close, got %d", got)
	}
}
