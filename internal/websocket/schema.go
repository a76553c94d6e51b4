package websocket

import (
	"github.com/edusync/proctor/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart   Action = "start"
	ActionSelect  Action = "select"
	ActionAdvance Action = "advance"
	ActionSubmit  Action = "submit"
	ActionSignal  Action = "signal"
	ActionPing    Action = "ping"
)

// Request is every client message. Only the fields of the given action are set.
type Request struct {
	Action   Action       `json:"action"`
	Question *int         `json:"question,omitempty"`
	Option   *int         `json:"option,omitempty"`
	Signal   model.Signal `json:"signal,omitempty"`
	Key      string       `json:"key,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState       Event = "state"
	EventGuard       Event = "guard"
	EventFullscreen  Event = "fullscreen"
	EventBanner      Event = "banner"
	EventBannerClear Event = "banner_clear"
	EventError       Event = "error"
	EventPong        Event = "pong"
)

type FullscreenMode string

const (
	FullscreenRequest FullscreenMode = "request"
	FullscreenExit    FullscreenMode = "exit"
)

type StateResponse struct {
	Event Event          `json:"event"`
	State model.Snapshot `json:"state"`
}

// GuardResponse tells the shell which listeners to install or remove.
type GuardResponse struct {
	Event            Event    `json:"event"`
	Enabled          bool     `json:"enabled"`
	BlockedKeys      []string `json:"blocked_keys,omitempty"`
	BlockClipboard   bool     `json:"block_clipboard"`
	BlockContextMenu bool     `json:"block_context_menu"`
}

type FullscreenResponse struct {
	Event Event          `json:"event"`
	Mode  FullscreenMode `json:"mode"`
}

type BannerResponse struct {
	Event          Event  `json:"event"`
	Message        string `json:"message"`
	WarningCount   int    `json:"warning_count"`
	MaxWarnings    int    `json:"max_warnings"`
	DismissAfterMS int64  `json:"dismiss_after_ms"`
}

type BannerClearResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
