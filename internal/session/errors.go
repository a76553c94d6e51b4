package session

import "errors"

// Command rejections. A rejected command leaves the session unchanged.
var (
	ErrNotReady           = errors.New("assessment is not loaded yet")
	ErrAlreadyStarted     = errors.New("session already started")
	ErrNotInProgress      = errors.New("session is not in progress")
	ErrSubmitted          = errors.New("assessment already submitted")
	ErrSubmitting         = errors.New("submission in progress")
	ErrLocked             = errors.New("answers are locked for submission")
	ErrNotCurrentQuestion = errors.New("only the current question can be answered")
	ErrInvalidOption      = errors.New("option index out of range")
	ErrUnanswered         = errors.New("current question is unanswered")
	ErrLastQuestion       = errors.New("already on the last question")
	ErrNotLastQuestion    = errors.New("submit is only available on the last question")
	ErrSessionClosed      = errors.New("session closed")
)
