package session

import (
	"context"
	"time"

	"github.com/edusync/proctor/internal/model"
)

// Backend is the remote LMS: assessment source and result store.
type Backend interface {
	FetchAssessment(ctx context.Context, id string) (*model.AssessmentRecord, error)
	SubmitResult(ctx context.Context, result model.Result) error
}

// Guard describes which browser listeners must be active.
type Guard struct {
	Enabled          bool
	BlockedKeys      []string
	BlockClipboard   bool
	BlockContextMenu bool
}

// Banner is a transient warning shown over the question.
type Banner struct {
	Message      string
	WarningCount int
	MaxWarnings  int
	DismissAfter time.Duration
}

// Environment is the presentation side of a session (the browser shell).
// All methods are called from the session's event loop; errors are logged
// and never change the session phase.
type Environment interface {
	RequestFullscreen() error
	ExitFullscreen() error
	SetGuard(Guard) error
	ShowBanner(Banner) error
	ClearBanner() error
	Render(model.Snapshot) error
}

// ViolationSink receives violations for audit. Record must not block.
type ViolationSink interface {
	Record(model.Violation)
}

type discardSink struct{}

func (discardSink) Record(model.Violation) {}
