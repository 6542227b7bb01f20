package model

// SecurityPolicy is the process-wide exam security configuration. It is read
// once at startup and immutable for a session's lifetime. DevMode is a master
// override that disables every check regardless of the individual flags.
type SecurityPolicy struct {
	RequireFullscreen  bool `json:"require_fullscreen"`
	DetectTabSwitch    bool `json:"detect_tab_switch"`
	DetectDevTools     bool `json:"detect_devtools"`
	PreventCopyPaste   bool `json:"prevent_copy_paste"`
	DisableContextMenu bool `json:"disable_context_menu"`
	PreventPrint       bool `json:"prevent_print"`
	MaxViolations      int  `json:"max_violations"`
	DevMode            bool `json:"-"`
}

// Effective returns the policy with the dev-mode override applied.
func (p SecurityPolicy) Effective() SecurityPolicy {
	if !p.DevMode {
		return p
	}
	return SecurityPolicy{MaxViolations: p.MaxViolations}
}

// Enabled reports whether any monitoring is active at all.
func (p SecurityPolicy) Enabled() bool {
	p = p.Effective()
	return p.RequireFullscreen || p.DetectTabSwitch || p.DetectDevTools ||
		p.PreventCopyPaste || p.DisableContextMenu || p.PreventPrint
}
