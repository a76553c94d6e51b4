package model

import "time"

// SessionPhase enumerates assessment session states.
type SessionPhase string

const (
	PhaseNotStarted SessionPhase = "NOT_STARTED"
	PhaseInProgress SessionPhase = "IN_PROGRESS"
	PhaseSubmitted  SessionPhase = "SUBMITTED"
	PhaseErrored    SessionPhase = "ERRORED"
)

// Terminal reports whether no further transition can leave the phase.
func (p SessionPhase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseErrored
}

// Snapshot is the read model of one session, pushed to the browser shell
// after every state change.
type Snapshot struct {
	SessionID     string        `json:"session_id"`
	AssessmentID  string        `json:"assessment_id"`
	UserID        string        `json:"user_id"`
	Title         string        `json:"title,omitempty"`
	Phase         SessionPhase  `json:"phase"`
	Loading       bool          `json:"loading"`
	CurrentIndex  int           `json:"current_index"`
	QuestionCount int           `json:"question_count"`
	Question      *QuestionView `json:"question,omitempty"`
	Answers       map[int]int   `json:"answers"`
	TimeRemaining int           `json:"time_remaining"`
	TimeBudget    int           `json:"time_budget"`
	WarningCount  int           `json:"warning_count"`
	MaxWarnings   int           `json:"max_warnings"`
	Submitting    bool          `json:"submitting"`
	Submitted     bool          `json:"submitted"`
	Score         *int          `json:"score,omitempty"`
	Message       string        `json:"message,omitempty"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
}
