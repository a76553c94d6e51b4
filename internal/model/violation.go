package model

import "time"

// Signal is an environment observation forwarded by the browser shell.
type Signal string

const (
	SignalVisibilityHidden Signal = "visibility_hidden"
	SignalFullscreenExit   Signal = "fullscreen_exit"
	SignalCopy             Signal = "copy"
	SignalCut              Signal = "cut"
	SignalPaste            Signal = "paste"
	SignalContextMenu      Signal = "context_menu"
	SignalKey              Signal = "key"
	// SignalFullscreenDenied reports that a full-screen request was refused.
	// It is not a violation.
	SignalFullscreenDenied Signal = "fullscreen_denied"
)

// Violation is one detected signal interpreted as a possible cheating attempt.
type Violation struct {
	ID           int64     `json:"id,omitempty"`
	SessionID    string    `json:"session_id"`
	AssessmentID string    `json:"assessment_id"`
	UserID       string    `json:"user_id"`
	Signal       Signal    `json:"signal"`
	Key          string    `json:"key,omitempty"`
	Counted      bool      `json:"counted"`
	WarningCount int       `json:"warning_count"`
	OccurredAt   time.Time `json:"occurred_at"`
}
