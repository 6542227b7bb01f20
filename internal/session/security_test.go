package session

import (
	"testing"
	"time"

	"github.com/Soule73/examena-sub000/internal/model"
)

func monitoredPolicy() model.SecurityPolicy {
	return model.SecurityPolicy{
		RequireFullscreen: true,
		DetectTabSwitch:   true,
		MaxViolations:     3,
	}
}

func TestSecurityMonitor_ThresholdBlocksExactlyOnce(t *testing.T) {
	var (
		violations int
		blocked    int
	)
	m := NewSecurityMonitor(MonitorConfig{
		Policy:      monitoredPolicy(),
		OnViolation: func(Violation) { violations++ },
		OnBlocked:   func() { blocked++ },
	})

	m.HandleSignal(SignalTabSwitch, "first")
	if m.Blocked() || blocked != 0 {
		t.Fatal("1st violation must not block")
	}
	m.HandleSignal(SignalTabSwitch, "second")
	if m.Blocked() || blocked != 0 {
		t.Fatal("2nd violation must not block")
	}
	m.HandleSignal(SignalTabSwitch, "third")
	if !m.Blocked() {
		t.Fatal("3rd violation must set blocked")
	}
	if blocked != 1 {
		t.Fatalf("OnBlocked must fire exactly once, fired %d times", blocked)
	}
	if violations != 3 {
		t.Fatalf("expected 3 violation callbacks, got %d", violations)
	}

	// Once blocked, further signals record nothing.
	m.HandleSignal(SignalTabSwitch, "fourth")
	if m.Count() != 3 || blocked != 1 {
		t.Fatalf("blocked monitor must be inert, count=%d blocked=%d", m.Count(), blocked)
	}
}

func TestSecurityMonitor_ProgrammaticExitExempt(t *testing.T) {
	m := NewSecurityMonitor(MonitorConfig{Policy: monitoredPolicy()})

	// Orchestrator-initiated exit: flagged just before the controlled exit
	// call, the resulting fullscreen-change event does not count.
	m.MarkProgrammaticExit()
	m.HandleSignal(SignalFullscreenExit, "change event after controlled exit")
	if m.Count() != 0 {
		t.Fatalf("programmatic exit must not count, got %d violations", m.Count())
	}

	// A user-initiated Escape-key exit does count.
	m.HandleSignal(SignalFullscreenExit, "escape key")
	if m.Count() != 1 {
		t.Fatalf("user exit must count, got %d violations", m.Count())
	}
}

func TestSecurityMonitor_ExemptFlagExpires(t *testing.T) {
	m := NewSecurityMonitor(MonitorConfig{
		Policy:      monitoredPolicy(),
		ExemptGrace: 10 * time.Millisecond,
	})

	m.MarkProgrammaticExit()
	time.Sleep(30 * time.Millisecond)

	m.HandleSignal(SignalFullscreenExit, "late event")
	if m.Count() != 1 {
		t.Fatal("expired exemption must not swallow a violation")
	}
}

func TestSecurityMonitor_SuppressOnlySignalsNotCounted(t *testing.T) {
	m := NewSecurityMonitor(MonitorConfig{Policy: model.SecurityPolicy{
		RequireFullscreen:  true,
		DetectTabSwitch:    true,
		DetectDevTools:     true,
		PreventCopyPaste:   true,
		DisableContextMenu: true,
		PreventPrint:       true,
		MaxViolations:      3,
	}})

	for _, kind := range []SignalKind{SignalCopyPaste, SignalDevTools, SignalContextMenu, SignalPrint} {
		m.HandleSignal(kind, "suppressed")
	}
	if m.Count() != 0 {
		t.Fatalf("suppress-only signals must never count, got %d", m.Count())
	}
}

func TestSecurityMonitor_DisabledDetectionsIgnored(t *testing.T) {
	m := NewSecurityMonitor(MonitorConfig{Policy: model.SecurityPolicy{MaxViolations: 3}})
	m.HandleSignal(SignalTabSwitch, "x")
	m.HandleSignal(SignalFullscreenExit, "y")
	if m.Count() != 0 {
		t.Fatalf("disabled detections must be ignored, got %d", m.Count())
	}
}

func TestSecurityMonitor_DevModeOverride(t *testing.T) {
	p := monitoredPolicy()
	p.DevMode = true
	m := NewSecurityMonitor(MonitorConfig{Policy: p})
	m.HandleSignal(SignalTabSwitch, "x")
	if m.Count() != 0 {
		t.Fatal("dev mode must disable all monitoring")
	}
}

func TestSecurityScore(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{count: 0, want: 100},
		{count: 1, want: 90},
		{count: 3, want: 70},
		{count: 10, want: 0},
		{count: 15, want: 0},
	}
	for _, tc := range tests {
		if got := SecurityScore(tc.count); got != tc.want {
			t.Errorf("SecurityScore(%d) = %d, want %d", tc.count, got, tc.want)
		}
	}
}
