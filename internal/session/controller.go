package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/proctor/internal/model"
)

const (
	msgLoadFailed       = "Failed to load assessment."
	msgNotFound         = "Assessment not found."
	msgNoQuestions      = "This assessment has no questions."
	msgSubmitted        = "Thank you! Your answers have been submitted."
	msgSubmitFailed     = "Submission failed. Please try again."
	msgForcedSubmission = "Too many warnings. Your assessment has been submitted automatically."
)

// submitTimeout bounds one result submission, which outlives Close.
const submitTimeout = 30 * time.Second

// Options identifies a session and carries its policy.
type Options struct {
	SessionID    string
	AssessmentID string
	UserID       string

	QuestionTimeLimit time.Duration
	BannerDuration    time.Duration
	Policy            Policy
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Backend     Backend
	Environment Environment
	Sink        ViolationSink
	Clock       Clock
	Logger      zerolog.Logger
	// Go runs network calls off the loop. Defaults to a new goroutine.
	Go func(func())
}

type submitTrigger string

const (
	triggerUser      submitTrigger = "user"
	triggerTimeout   submitTrigger = "timeout"
	triggerIntegrity submitTrigger = "integrity"
	triggerRetry     submitTrigger = "retry"
)

// Controller is the assessment state machine. It is the single writer of
// session state and the answer map. It is not safe for concurrent use: every
// method must run on the event loop given to NewController.
type Controller struct {
	opts    Options
	backend Backend
	env     Environment
	sink    ViolationSink
	clock   Clock
	post    Dispatcher
	goFn    func(func())
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	phase         model.SessionPhase
	loadRequested bool
	loading       bool
	assessment    *model.Assessment
	answers       map[int]int
	current       int
	warningCount  int
	startedAt     *time.Time
	message       string

	// locked freezes answers and navigation once the first submission
	// attempt starts; a retry resubmits the same answers.
	locked     bool
	submitting bool
	submitted  bool
	score      *int

	fullscreen bool
	cleaned    bool
	closed     bool

	timer      *Countdown
	monitor    *Monitor
	bannerGen  uint64
	bannerStop func()
}

// NewController builds a controller in the NotStarted phase.
func NewController(opts Options, deps Deps, post Dispatcher) *Controller {
	if deps.Sink == nil {
		deps.Sink = discardSink{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Go == nil {
		deps.Go = func(fn func()) { go fn() }
	}
	if opts.QuestionTimeLimit <= 0 {
		opts.QuestionTimeLimit = 25 * time.Second
	}
	if opts.BannerDuration <= 0 {
		opts.BannerDuration = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		opts:    opts,
		backend: deps.Backend,
		env:     deps.Environment,
		sink:    deps.Sink,
		clock:   deps.Clock,
		post:    post,
		goFn:    deps.Go,
		log: deps.Logger.With().
			Str("session_id", opts.SessionID).
			Str("assessment_id", opts.AssessmentID).
			Str("user_id", opts.UserID).
			Logger(),
		ctx:     ctx,
		cancel:  cancel,
		phase:   model.PhaseNotStarted,
		answers: make(map[int]int),
	}
	c.timer = NewCountdown(deps.Clock, post, opts.QuestionTimeLimit, c.onTick, c.ForceAdvanceOrSubmit)
	c.monitor = NewMonitor(opts.Policy, deps.Environment)
	return c
}

// ─── Lifecycle ─────────────────────────────────────────────────────────

// Load fetches the assessment. Only the first call has an effect. The
// result is applied on the loop once the fetch completes.
func (c *Controller) Load() {
	if c.loadRequested || c.closed {
		return
	}
	c.loadRequested = true
	c.loading = true
	c.render()

	ctx, id := c.ctx, c.opts.AssessmentID
	c.goFn(func() {
		rec, err := c.backend.FetchAssessment(ctx, id)
		c.post.Post(func() { c.onLoaded(rec, err) })
	})
}

func (c *Controller) onLoaded(rec *model.AssessmentRecord, err error) {
	if c.closed || c.phase != model.PhaseNotStarted {
		return
	}
	c.loading = false

	if err != nil {
		c.log.Error().Err(err).Msg("Assessment load failed")
		if errors.Is(err, model.ErrAssessmentNotFound) {
			c.fail(msgNotFound)
		} else {
			c.fail(msgLoadFailed)
		}
		return
	}

	questions, err := model.DecodeQuestions(rec.SerializedQuestions)
	if err != nil {
		c.log.Error().Err(err).Msg("Question list could not be decoded")
	}

	c.assessment = &model.Assessment{
		ID:        rec.ID,
		Title:     rec.Title,
		Questions: questions,
	}
	if c.assessment.ID == "" {
		c.assessment.ID = c.opts.AssessmentID
	}

	if len(questions) == 0 {
		c.fail(msgNoQuestions)
		return
	}

	c.log.Info().Int("questions", len(questions)).Msg("Assessment loaded")
	c.render()
}

// Start moves NotStarted → InProgress: requests full screen, attaches the
// integrity monitor and starts the clock for the first question.
func (c *Controller) Start() error {
	switch {
	case c.closed:
		return ErrSessionClosed
	case c.phase != model.PhaseNotStarted:
		return ErrAlreadyStarted
	case c.assessment == nil:
		return ErrNotReady
	}

	now := c.clock.Now()
	c.phase = model.PhaseInProgress
	c.startedAt = &now
	c.current = 0
	c.message = ""

	c.fullscreen = true
	if err := c.env.RequestFullscreen(); err != nil {
		c.log.Warn().Err(err).Msg("Full-screen request failed")
	}
	if err := c.monitor.Attach(); err != nil {
		c.log.Warn().Err(err).Msg("Attaching integrity guard failed")
	}
	c.timer.Reset()

	c.log.Info().
		Int("budget_seconds", c.timer.Budget()).
		Msg("Session started")
	c.render()
	return nil
}

// Close tears the session down. It runs the same cleanup as the terminal
// phases and leaves the phase untouched.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.cleanup()
	c.cancel()
	c.log.Debug().Str("phase", string(c.phase)).Msg("Session closed")
}

// ─── Student commands ──────────────────────────────────────────────────

// SelectAnswer records option for the current question.
func (c *Controller) SelectAnswer(question, option int) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if question != c.current {
		return ErrNotCurrentQuestion
	}
	if option < 0 || option >= len(c.assessment.Questions[question].Options) {
		return ErrInvalidOption
	}

	c.answers[question] = option
	c.render()
	return nil
}

// Advance moves to the next question once the current one is answered.
func (c *Controller) Advance() error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if c.isLast() {
		return ErrLastQuestion
	}
	if !c.answered(c.current) {
		return ErrUnanswered
	}

	c.moveTo(c.current + 1)
	return nil
}

// Submit is the explicit submit on the last question. After a failed
// submission it retries with the already locked answers.
func (c *Controller) Submit() error {
	switch {
	case c.closed:
		return ErrSessionClosed
	case c.submitted:
		return ErrSubmitted
	case c.phase != model.PhaseInProgress:
		return ErrNotInProgress
	case c.submitting:
		return ErrSubmitting
	}

	if c.locked {
		c.beginSubmission(triggerRetry)
		return nil
	}
	if !c.isLast() {
		return ErrNotLastQuestion
	}
	if !c.answered(c.current) {
		return ErrUnanswered
	}

	c.beginSubmission(triggerUser)
	return nil
}

// ─── Forced paths ──────────────────────────────────────────────────────

// ForceAdvanceOrSubmit is the timer-expiry path. An unanswered current
// question is marked with the sentinel; then the session moves on, or is
// submitted when this was the last question. Calls on a finished or locked
// session are absorbed.
func (c *Controller) ForceAdvanceOrSubmit() {
	if !c.forcible() {
		return
	}

	if _, ok := c.answers[c.current]; !ok {
		c.answers[c.current] = model.Unanswered
	}

	if !c.isLast() {
		c.log.Debug().Int("question", c.current).Msg("Time expired, advancing")
		c.moveTo(c.current + 1)
		return
	}

	c.log.Info().Msg("Time expired on last question, submitting")
	c.beginSubmission(triggerTimeout)
}

// Terminate ends the whole session: every question without an entry gets
// the sentinel and the answers are submitted.
func (c *Controller) Terminate() {
	if !c.forcible() {
		return
	}

	for i := range c.assessment.Questions {
		if _, ok := c.answers[i]; !ok {
			c.answers[i] = model.Unanswered
		}
	}

	c.log.Warn().Int("warning_count", c.warningCount).Msg("Warning threshold exceeded, terminating session")
	c.message = msgForcedSubmission
	c.beginSubmission(triggerIntegrity)
}

// ReportSignal feeds one environment signal to the integrity monitor.
func (c *Controller) ReportSignal(sig model.Signal, key string) {
	if sig == model.SignalFullscreenDenied {
		c.log.Warn().Msg("Browser denied full-screen request")
		return
	}
	if !c.forcible() {
		return
	}

	verdict := c.monitor.Classify(sig, key)
	if verdict == VerdictIgnore {
		return
	}

	counted := verdict == VerdictCount
	if counted {
		c.warningCount++
	}

	c.sink.Record(model.Violation{
		SessionID:    c.opts.SessionID,
		AssessmentID: c.opts.AssessmentID,
		UserID:       c.opts.UserID,
		Signal:       sig,
		Key:          key,
		Counted:      counted,
		WarningCount: c.warningCount,
		OccurredAt:   c.clock.Now(),
	})

	c.log.Info().
		Str("signal", string(sig)).
		Bool("counted", counted).
		Int("warning_count", c.warningCount).
		Msg("Integrity violation")

	if counted && c.monitor.Escalates(c.warningCount) {
		c.Terminate()
		return
	}

	text := describeSignal(sig) + "."
	if counted {
		text = fmt.Sprintf("%s. Warning %d of %d.", describeSignal(sig), c.warningCount, c.opts.Policy.MaxWarnings)
	}
	c.showBanner(text)
	c.render()
}

// ─── Submission ────────────────────────────────────────────────────────

func (c *Controller) beginSubmission(trigger submitTrigger) {
	if c.submitting || c.submitted {
		return
	}
	c.locked = true
	c.submitting = true
	c.timer.Stop()

	correct := CorrectCount(c.assessment.Questions, c.answers)
	total := len(c.assessment.Questions)
	result := model.Result{
		AssessmentID: c.assessment.ID,
		UserID:       c.opts.UserID,
		Score:        PercentScore(correct, total),
	}

	c.log.Info().
		Str("trigger", string(trigger)).
		Int("correct", correct).
		Int("total", total).
		Int("score", result.Score).
		Msg("Submitting result")
	c.render()

	// A result already on the wire must survive teardown of the session.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), submitTimeout)
	log := c.log
	c.goFn(func() {
		defer cancel()
		err := c.backend.SubmitResult(ctx, result)
		if err != nil {
			log.Error().Err(err).Int("score", result.Score).Msg("Result submission failed")
		} else {
			log.Info().Int("score", result.Score).Msg("Result delivered")
		}
		c.post.Post(func() { c.onSubmitted(result, err) })
	})
}

func (c *Controller) onSubmitted(result model.Result, err error) {
	if c.closed || c.submitted {
		return
	}
	c.submitting = false

	if err != nil {
		c.message = msgSubmitFailed
		c.render()
		return
	}

	score := result.Score
	c.score = &score
	c.submitted = true
	c.phase = model.PhaseSubmitted
	if c.message != msgForcedSubmission {
		c.message = msgSubmitted
	}
	c.cleanup()

	c.log.Info().Int("score", score).Msg("Assessment submitted")
	c.render()
}

// ─── Internals ─────────────────────────────────────────────────────────

func (c *Controller) fail(message string) {
	c.phase = model.PhaseErrored
	c.message = message
	c.cleanup()
	c.render()
}

// cleanup stops the clock, removes listeners and leaves full screen.
// Runs once, on Submitted, Errored or Close.
func (c *Controller) cleanup() {
	if c.cleaned {
		return
	}
	c.cleaned = true

	c.timer.Stop()
	if err := c.monitor.Detach(); err != nil {
		c.log.Warn().Err(err).Msg("Detaching integrity guard failed")
	}
	if c.fullscreen {
		c.fullscreen = false
		if err := c.env.ExitFullscreen(); err != nil {
			c.log.Warn().Err(err).Msg("Full-screen exit failed")
		}
	}
	c.clearBanner()
}

func (c *Controller) checkMutable() error {
	switch {
	case c.closed:
		return ErrSessionClosed
	case c.submitted:
		return ErrSubmitted
	case c.phase != model.PhaseInProgress:
		return ErrNotInProgress
	case c.submitting:
		return ErrSubmitting
	case c.locked:
		return ErrLocked
	}
	return nil
}

func (c *Controller) forcible() bool {
	return !c.closed && !c.submitted && !c.locked && c.phase == model.PhaseInProgress
}

func (c *Controller) moveTo(index int) {
	c.current = index
	c.timer.Reset()
	c.render()
}

func (c *Controller) isLast() bool {
	return c.current >= len(c.assessment.Questions)-1
}

func (c *Controller) answered(index int) bool {
	ans, ok := c.answers[index]
	return ok && ans != model.Unanswered
}

func (c *Controller) onTick(remaining int) {
	c.log.Trace().Int("remaining", remaining).Int("question", c.current).Msg("Tick")
	c.render()
}

func (c *Controller) showBanner(text string) {
	c.clearBannerTimer()
	c.bannerGen++
	gen := c.bannerGen

	banner := Banner{
		Message:      text,
		WarningCount: c.warningCount,
		MaxWarnings:  c.opts.Policy.MaxWarnings,
		DismissAfter: c.opts.BannerDuration,
	}
	if err := c.env.ShowBanner(banner); err != nil {
		c.log.Warn().Err(err).Msg("Showing warning banner failed")
	}

	c.bannerStop = c.clock.AfterFunc(c.opts.BannerDuration, func() {
		c.post.Post(func() {
			if gen == c.bannerGen {
				c.clearBanner()
			}
		})
	})
}

func (c *Controller) clearBanner() {
	if c.bannerStop == nil {
		return
	}
	c.clearBannerTimer()
	c.bannerGen++
	if err := c.env.ClearBanner(); err != nil {
		c.log.Warn().Err(err).Msg("Clearing warning banner failed")
	}
}

func (c *Controller) clearBannerTimer() {
	if c.bannerStop != nil {
		c.bannerStop()
		c.bannerStop = nil
	}
}

func (c *Controller) render() {
	if c.closed {
		return
	}
	if err := c.env.Render(c.Snapshot()); err != nil {
		c.log.Debug().Err(err).Msg("Render failed")
	}
}

// Snapshot returns the current read model.
func (c *Controller) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		SessionID:     c.opts.SessionID,
		AssessmentID:  c.opts.AssessmentID,
		UserID:        c.opts.UserID,
		Phase:         c.phase,
		Loading:       c.loading,
		CurrentIndex:  c.current,
		Answers:       make(map[int]int, len(c.answers)),
		TimeRemaining: c.timer.Remaining(),
		TimeBudget:    c.timer.Budget(),
		WarningCount:  c.warningCount,
		MaxWarnings:   c.opts.Policy.MaxWarnings,
		Submitting:    c.submitting,
		Submitted:     c.submitted,
		Score:         c.score,
		Message:       c.message,
		StartedAt:     c.startedAt,
	}
	for k, v := range c.answers {
		snap.Answers[k] = v
	}

	if c.assessment != nil {
		snap.Title = c.assessment.Title
		snap.QuestionCount = len(c.assessment.Questions)
		if c.phase == model.PhaseInProgress && c.current < len(c.assessment.Questions) {
			q := c.assessment.Questions[c.current]
			snap.Question = &model.QuestionView{
				Index:        c.current,
				QuestionText: q.QuestionText,
				Options:      append([]string(nil), q.Options...),
			}
		}
	}
	return snap
}
