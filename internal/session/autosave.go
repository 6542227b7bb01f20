package session

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AutosaveConfig tunes the persistence pipeline. Zero values pick the
// production defaults; tests shorten the windows.
type AutosaveConfig struct {
	// DebounceWindow is the trailing-edge quiet period after an edit.
	DebounceWindow time.Duration // default 500ms
	// FlushInterval is the periodic full-save cadence.
	FlushInterval time.Duration // default 30s
	// MaxRetries bounds save retries before reporting the failure.
	MaxRetries int // default 3
	// BackoffBase yields a base^attempt delay between retries.
	BackoffBase float64 // default 2
	// BackoffUnit scales the backoff delay. Seconds in production.
	BackoffUnit time.Duration // default 1s
	// OnError observes an exhausted-retries failure. Never blocks the caller
	// path: the next debounce or periodic cycle retries anyway.
	OnError func(err error)
}

func (c AutosaveConfig) withDefaults() AutosaveConfig {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 500 * time.Millisecond
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = time.Second
	}
	return c
}

// AutosavePipeline debounces per-edit saves, flushes periodically while
// dirty, retries with exponential backoff, and offers a superseding force
// flush for submission and violation paths. A network or server failure is
// recoverable and silent: answers stay correct locally and the next cycle
// retries.
type AutosavePipeline struct {
	cfg   AutosaveConfig
	saver func(ctx context.Context) error
	log   zerolog.Logger

	mu       sync.Mutex
	debounce *time.Timer
	done     chan struct{}
	closed   bool
	gen      uint64 // bumped on every edit
	savedGen uint64 // generation covered by the last successful save

	// flushMu serializes save requests so a forced save can never race a
	// pending debounced one and persist stale data over fresh data.
	flushMu sync.Mutex
}

// NewAutosavePipeline wires a pipeline to the save function. The periodic
// flush loop starts immediately and runs until Close.
func NewAutosavePipeline(cfg AutosaveConfig, save func(ctx context.Context) error, log zerolog.Logger) *AutosavePipeline {
	p := &AutosavePipeline{
		cfg:   cfg.withDefaults(),
		saver: save,
		log:   log.With().Str("component", "autosave").Logger(),
		done:  make(chan struct{}),
	}
	go p.periodicLoop()
	return p
}

// Schedule records an edit and (re)starts the debounce window. Each new edit
// cancels the previous pending save; when the window finally elapses the save
// carries the newest answer map.
func (p *AutosavePipeline) Schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.gen++
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.cfg.DebounceWindow, p.fireDebounced)
}

func (p *AutosavePipeline) fireDebounced() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.debounce = nil
	p.mu.Unlock()

	_ = p.flush(context.Background())
}

func (p *AutosavePipeline) periodicLoop() {
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if p.Dirty() {
				_ = p.flush(context.Background())
			}
		}
	}
}

// ForceFlush cancels any pending debounced or periodic save and performs an
// immediate save, retrying per the configured policy. The returned error —
// only after exhausted retries — lets the submit path decide to proceed
// regardless.
func (p *AutosavePipeline) ForceFlush(ctx context.Context) error {
	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
		p.debounce = nil
	}
	dirty := p.gen != p.savedGen
	p.mu.Unlock()

	if !dirty {
		return nil
	}
	return p.flush(ctx)
}

// FlushAsync fires one best-effort save on its own goroutine, with no retry
// and no acknowledgment. Used on page unload.
func (p *AutosavePipeline) FlushAsync() {
	p.mu.Lock()
	if p.closed || p.gen == p.savedGen {
		p.mu.Unlock()
		return
	}
	gen := p.gen
	p.mu.Unlock()

	go func() {
		if err := p.saver(context.Background()); err != nil {
			p.log.Debug().Err(err).Msg("unload flush failed")
			return
		}
		p.markSaved(gen)
	}()
}

// flush performs one save cycle with retry-with-backoff. The payload is
// whatever the saver reads at call time, so the latest map always wins.
func (p *AutosavePipeline) flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	gen := p.gen
	p.mu.Unlock()

	var err error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if !p.sleep(ctx, p.backoff(attempt)) {
				break
			}
		}
		if err = p.saver(ctx); err == nil {
			p.markSaved(gen)
			return nil
		}
		p.log.Warn().Err(err).Int("attempt", attempt+1).Msg("save attempt failed")
	}

	if p.cfg.OnError != nil && err != nil {
		p.cfg.OnError(err)
	}
	return err
}

func (p *AutosavePipeline) markSaved(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen > p.savedGen {
		p.savedGen = gen
	}
}

func (p *AutosavePipeline) backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(p.cfg.BackoffBase, float64(attempt))) * p.cfg.BackoffUnit
}

// sleep waits for d unless the context is cancelled or the pipeline closes.
func (p *AutosavePipeline) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.done:
		return false
	case <-t.C:
		return true
	}
}

// Dirty reports whether edits exist that no successful save has covered.
func (p *AutosavePipeline) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen != p.savedGen
}

// Close cancels all pending timers. No save fires after Close returns.
func (p *AutosavePipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.debounce != nil {
		p.debounce.Stop()
		p.debounce = nil
	}
	close(p.done)
}
