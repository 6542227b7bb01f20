package session

import (
	"sync"
	"time"

	"github.com/Soule73/examena-sub000/internal/model"
)

// ViolationType identifies a detected security-policy breach.
type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "tab_switch"
	ViolationFullscreenExit ViolationType = "fullscreen_exit"
)

// SignalKind is an environment signal reported by the client. Countable
// signals raise violations; the rest are suppress-only and are never counted.
type SignalKind string

const (
	SignalTabSwitch      SignalKind = "tab_switch"
	SignalFullscreenExit SignalKind = "fullscreen_exit"
	SignalCopyPaste      SignalKind = "copy_paste"
	SignalDevTools       SignalKind = "devtools"
	SignalContextMenu    SignalKind = "context_menu"
	SignalPrint          SignalKind = "print"
)

// Violation is one recorded security-policy breach.
type Violation struct {
	Type      ViolationType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Details   string        `json:"details,omitempty"`
}

// SecurityMonitor tracks environment signals during a monitored attempt.
// Countable signals append a violation record and increment the counter;
// reaching the configured maximum sets the blocked state and fires OnBlocked
// exactly once. Orchestrator-initiated fullscreen exits are exempted through
// a short-lived programmatic-exit flag.
type SecurityMonitor struct {
	mu         sync.Mutex
	policy     model.SecurityPolicy
	violations []Violation
	blocked    bool

	// programmaticUntil exempts fullscreen-exit signals until the deadline.
	programmaticUntil time.Time
	exemptGrace       time.Duration

	onViolation func(v Violation)
	onBlocked   func()
}

// MonitorConfig configures a SecurityMonitor. Callbacks run on the goroutine
// that delivers the signal.
type MonitorConfig struct {
	Policy model.SecurityPolicy
	// ExemptGrace is how long a programmatic fullscreen exit stays exempt.
	// Defaults to one second.
	ExemptGrace time.Duration
	OnViolation func(v Violation)
	OnBlocked   func()
}

// NewSecurityMonitor creates a monitor for the effective policy. When the
// policy disables all monitoring the monitor stays inert.
func NewSecurityMonitor(cfg MonitorConfig) *SecurityMonitor {
	grace := cfg.ExemptGrace
	if grace <= 0 {
		grace = time.Second
	}
	return &SecurityMonitor{
		policy:      cfg.Policy.Effective(),
		exemptGrace: grace,
		onViolation: cfg.OnViolation,
		onBlocked:   cfg.OnBlocked,
	}
}

// HandleSignal processes one environment signal. Suppress-only kinds return
// without recording anything; disabled detections are ignored outright.
func (m *SecurityMonitor) HandleSignal(kind SignalKind, details string) {
	var vt ViolationType

	switch kind {
	case SignalTabSwitch:
		if !m.policy.DetectTabSwitch {
			return
		}
		vt = ViolationTabSwitch
	case SignalFullscreenExit:
		if !m.policy.RequireFullscreen {
			return
		}
		if m.consumeProgrammaticExit() {
			return
		}
		vt = ViolationFullscreenExit
	default:
		// copy/paste, devtools, context menu, print: the client suppresses
		// the action; nothing is recorded here.
		return
	}

	m.record(vt, details)
}

func (m *SecurityMonitor) record(vt ViolationType, details string) {
	m.mu.Lock()
	if m.blocked {
		m.mu.Unlock()
		return
	}

	v := Violation{Type: vt, Timestamp: time.Now(), Details: details}
	m.violations = append(m.violations, v)

	var fireBlocked func()
	if m.policy.MaxViolations > 0 && len(m.violations) >= m.policy.MaxViolations {
		m.blocked = true
		fireBlocked = m.onBlocked
	}
	fireViolation := m.onViolation
	m.mu.Unlock()

	if fireViolation != nil {
		fireViolation(v)
	}
	if fireBlocked != nil {
		fireBlocked()
	}
}

// MarkProgrammaticExit flags the next fullscreen-exit signal as
// session-initiated. The flag expires after the configured grace period.
func (m *SecurityMonitor) MarkProgrammaticExit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programmaticUntil = time.Now().Add(m.exemptGrace)
}

func (m *SecurityMonitor) consumeProgrammaticExit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Now().Before(m.programmaticUntil) {
		m.programmaticUntil = time.Time{}
		return true
	}
	return false
}

// Count returns the number of recorded violations.
func (m *SecurityMonitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.violations)
}

// Blocked reports whether the violation threshold has been crossed.
func (m *SecurityMonitor) Blocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocked
}

// Violations returns a copy of the recorded violations.
func (m *SecurityMonitor) Violations() []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Violation, len(m.violations))
	copy(out, m.violations)
	return out
}

// SecurityScore is 100 minus 10 per violation, floored at 0.
func SecurityScore(violationCount int) int {
	score := 100 - 10*violationCount
	if score < 0 {
		return 0
	}
	return score
}
