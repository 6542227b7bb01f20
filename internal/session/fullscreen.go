package session

import (
	"context"

	"github.com/rs/zerolog"
)

// Display is the client-edge surface the session uses to control fullscreen.
// Both operations are asynchronous browser requests that may fail (permission
// denied, unsupported); failures are swallowed and never block the attempt.
type Display interface {
	EnterFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
}

// FullscreenGate blocks question rendering until fullscreen is entered, when
// the policy requires it. Entry failure unblocks anyway — a denied or
// unsupported browser API must not lock a student out of an exam.
type FullscreenGate struct {
	required bool
	open     bool
	display  Display
	log      zerolog.Logger
}

// NewFullscreenGate creates a gate. Without the fullscreen requirement the
// gate starts open.
func NewFullscreenGate(required bool, display Display, log zerolog.Logger) *FullscreenGate {
	return &FullscreenGate{
		required: required,
		open:     !required,
		display:  display,
		log:      log.With().Str("component", "fullscreen_gate").Logger(),
	}
}

// Open reports whether questions may be rendered.
func (g *FullscreenGate) Open() bool {
	return g.open
}

// Enter attempts to enter fullscreen and opens the gate on success or
// failure alike.
func (g *FullscreenGate) Enter(ctx context.Context) {
	if g.open {
		return
	}
	if err := g.display.EnterFullscreen(ctx); err != nil {
		g.log.Debug().Err(err).Msg("fullscreen entry failed, opening gate anyway")
	}
	g.open = true
}

// Exit leaves fullscreen on submission or termination. Errors are swallowed.
func (g *FullscreenGate) Exit(ctx context.Context) {
	if err := g.display.ExitFullscreen(ctx); err != nil {
		g.log.Debug().Err(err).Msg("fullscreen exit failed")
	}
}
