package session

import (
	"sort"
	"strings"

	"github.com/edusync/proctor/internal/model"
)

// DefaultBlockedKeys are the combos that open developer tools or view-source.
var DefaultBlockedKeys = []string{
	"F12",
	"Ctrl+Shift+I",
	"Ctrl+Shift+J",
	"Ctrl+Shift+C",
	"Ctrl+U",
	"Alt+Meta+I",
	"Alt+Meta+J",
	"Alt+Meta+C",
	"Meta+U",
}

// Verdict is the Integrity Monitor's decision about one signal.
type Verdict int

const (
	// VerdictIgnore drops the signal.
	VerdictIgnore Verdict = iota
	// VerdictWarn shows a banner without touching the warning counter.
	VerdictWarn
	// VerdictCount records a violation against the warning counter.
	VerdictCount
)

// Policy configures violation counting and escalation.
type Policy struct {
	// MaxWarnings is the largest warning count that only produces a banner.
	MaxWarnings int
	// CountSuppressed makes blocked clipboard, context-menu and dev-tool
	// actions count as violations instead of banner-only.
	CountSuppressed bool
	BlockedKeys     []string
}

// Monitor classifies environment signals while the session is in progress.
// It owns the guard (listener) lifecycle on the environment.
type Monitor struct {
	policy   Policy
	env      Environment
	blocked  map[string]struct{}
	attached bool
}

// NewMonitor creates a detached monitor.
func NewMonitor(policy Policy, env Environment) *Monitor {
	keys := policy.BlockedKeys
	if keys == nil {
		keys = DefaultBlockedKeys
	}
	blocked := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		blocked[NormalizeCombo(k)] = struct{}{}
	}
	return &Monitor{policy: policy, env: env, blocked: blocked}
}

// Attach asks the environment to install its listeners.
func (m *Monitor) Attach() error {
	if m.attached {
		return nil
	}
	m.attached = true
	return m.env.SetGuard(Guard{
		Enabled:          true,
		BlockedKeys:      m.BlockedKeys(),
		BlockClipboard:   true,
		BlockContextMenu: true,
	})
}

// Detach removes the listeners. Safe to call when detached.
func (m *Monitor) Detach() error {
	if !m.attached {
		return nil
	}
	m.attached = false
	return m.env.SetGuard(Guard{Enabled: false})
}

// Attached reports whether listeners are installed.
func (m *Monitor) Attached() bool { return m.attached }

// Classify decides how sig should be treated. key is only used for SignalKey.
func (m *Monitor) Classify(sig model.Signal, key string) Verdict {
	if !m.attached {
		return VerdictIgnore
	}

	switch sig {
	case model.SignalVisibilityHidden, model.SignalFullscreenExit:
		return VerdictCount
	case model.SignalCopy, model.SignalCut, model.SignalPaste, model.SignalContextMenu:
		return m.suppressed()
	case model.SignalKey:
		if _, ok := m.blocked[NormalizeCombo(key)]; !ok {
			return VerdictIgnore
		}
		return m.suppressed()
	default:
		return VerdictIgnore
	}
}

// Escalates reports whether warningCount ends the session.
func (m *Monitor) Escalates(warningCount int) bool {
	return warningCount > m.policy.MaxWarnings
}

// BlockedKeys returns the normalized blocked combos in stable order.
func (m *Monitor) BlockedKeys() []string {
	keys := make([]string, 0, len(m.blocked))
	for k := range m.blocked {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Monitor) suppressed() Verdict {
	if m.policy.CountSuppressed {
		return VerdictCount
	}
	return VerdictWarn
}

var modifierOrder = []string{"Ctrl", "Alt", "Shift", "Meta"}

// NormalizeCombo canonicalises a key combination: modifiers in
// Ctrl, Alt, Shift, Meta order followed by the upper-cased key.
// "shift+ctrl+i", "Control+Shift+I" and "ctrl + shift + I" all become
// "Ctrl+Shift+I". "Cmd" and "Option" map to Meta and Alt.
func NormalizeCombo(combo string) string {
	mods := make(map[string]bool, 4)
	key := ""

	for _, part := range strings.Split(combo, "+") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		switch strings.ToLower(p) {
		case "ctrl", "control":
			mods["Ctrl"] = true
		case "alt", "option":
			mods["Alt"] = true
		case "shift":
			mods["Shift"] = true
		case "meta", "cmd", "command", "super":
			mods["Meta"] = true
		default:
			key = strings.ToUpper(p)
		}
	}

	parts := make([]string, 0, 5)
	for _, m := range modifierOrder {
		if mods[m] {
			parts = append(parts, m)
		}
	}
	if key != "" {
		parts = append(parts, key)
	}
	return strings.Join(parts, "+")
}

func describeSignal(sig model.Signal) string {
	switch sig {
	case model.SignalVisibilityHidden:
		return "Leaving the assessment tab is not allowed"
	case model.SignalFullscreenExit:
		return "Exiting full-screen mode is not allowed"
	case model.SignalCopy, model.SignalCut, model.SignalPaste:
		return "Copy and paste are disabled during the assessment"
	case model.SignalContextMenu:
		return "Right-click is disabled during the assessment"
	case model.SignalKey:
		return "Developer tools are disabled during the assessment"
	default:
		return "Suspicious activity detected"
	}
}
