package websocket

import (
	"github.com/edusync/proctor/internal/model"
	"github.com/edusync/proctor/internal/session"
)

// Environment drives the browser shell on the other end of a connection.
// Each capability call becomes one event.
type Environment struct {
	conn *Conn
}

var _ session.Environment = (*Environment)(nil)

func NewEnvironment(conn *Conn) *Environment {
	return &Environment{conn: conn}
}

func (e *Environment) RequestFullscreen() error {
	return e.conn.WriteTyped(FullscreenResponse{Event: EventFullscreen, Mode: FullscreenRequest})
}

func (e *Environment) ExitFullscreen() error {
	return e.conn.WriteTyped(FullscreenResponse{Event: EventFullscreen, Mode: FullscreenExit})
}

func (e *Environment) SetGuard(g session.Guard) error {
	return e.conn.WriteTyped(GuardResponse{
		Event:            EventGuard,
		Enabled:          g.Enabled,
		BlockedKeys:      g.BlockedKeys,
		BlockClipboard:   g.BlockClipboard,
		BlockContextMenu: g.BlockContextMenu,
	})
}

func (e *Environment) ShowBanner(b session.Banner) error {
	return e.conn.WriteTyped(BannerResponse{
		Event:          EventBanner,
		Message:        b.Message,
		WarningCount:   b.WarningCount,
		MaxWarnings:    b.MaxWarnings,
		DismissAfterMS: b.DismissAfter.Milliseconds(),
	})
}

func (e *Environment) ClearBanner() error {
	return e.conn.WriteTyped(BannerClearResponse{Event: EventBannerClear})
}

func (e *Environment) Render(s model.Snapshot) error {
	return e.conn.WriteTyped(StateResponse{Event: EventState, State: s})
}
