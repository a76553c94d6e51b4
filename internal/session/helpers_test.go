package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/proctor/internal/model"
)

// manualLoop queues posted work until the test drains it.
type manualLoop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
}

func (m *manualLoop) Post(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, fn)
	return true
}

func (m *manualLoop) Drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		fn()
	}
}

func (m *manualLoop) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// fakeClock fires tickers and timers only when stepped.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

type fakeTicker struct {
	period  time.Duration
	next    time.Time
	fn      func()
	stopped bool
}

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Every(period time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{period: period, next: c.now.Add(period), fn: fn}
	c.tickers = append(c.tickers, t)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.stopped = true
	}
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.stopped = true
	}
}

// Step moves time forward by d and fires what came due. Callbacks only
// post to the loop, so nothing runs until the loop is drained.
func (c *fakeClock) Step(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.tickers {
		for !t.stopped && !t.next.After(c.now) {
			due = append(due, t.fn)
			t.next = t.next.Add(t.period)
		}
	}
	for _, t := range c.timers {
		if !t.stopped && !t.at.After(c.now) {
			t.stopped = true
			due = append(due, t.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

func (c *fakeClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (c *fakeClock) ActiveTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// fakeEnv records every capability call.
type fakeEnv struct {
	mu            sync.Mutex
	fullscreenReq int
	fullscreenEx  int
	guards        []Guard
	banners       []Banner
	cleared       int
	renders       []model.Snapshot
	requestErr    error
}

func (e *fakeEnv) RequestFullscreen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fullscreenReq++
	return e.requestErr
}

func (e *fakeEnv) ExitFullscreen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fullscreenEx++
	return nil
}

func (e *fakeEnv) SetGuard(g Guard) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.guards = append(e.guards, g)
	return nil
}

func (e *fakeEnv) ShowBanner(b Banner) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.banners = append(e.banners, b)
	return nil
}

func (e *fakeEnv) ClearBanner() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared++
	return nil
}

func (e *fakeEnv) Render(s model.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renders = append(e.renders, s)
	return nil
}

func (e *fakeEnv) guardEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.guards) > 0 && e.guards[len(e.guards)-1].Enabled
}

// fakeBackend serves one assessment and records submissions.
type fakeBackend struct {
	mu        sync.Mutex
	record    *model.AssessmentRecord
	fetchErr  error
	submitErr []error
	submitted []model.Result
	fetches   int
}

func (b *fakeBackend) FetchAssessment(_ context.Context, id string) (*model.AssessmentRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	return b.record, nil
}

func (b *fakeBackend) SubmitResult(_ context.Context, r model.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, r)
	if len(b.submitErr) > 0 {
		err := b.submitErr[0]
		b.submitErr = b.submitErr[1:]
		return err
	}
	return nil
}

func (b *fakeBackend) submissions() []model.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Result(nil), b.submitted...)
}

type recordingSink struct {
	mu         sync.Mutex
	violations []model.Violation
}

func (s *recordingSink) Record(v model.Violation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, v)
}

var errNetwork = errors.New("connection refused")

// serialize builds an LMS question list where answer i is correct[i].
func serialize(t *testing.T, correct ...int) string {
	t.Helper()
	type rec struct {
		QuestionText  string   `json:"questionText"`
		Options       []string `json:"options"`
		CorrectOption int      `json:"correctOption"`
	}
	recs := make([]rec, len(correct))
	for i, c := range correct {
		recs[i] = rec{QuestionText: "Question", Options: []string{"A", "B", "C", "D"}, CorrectOption: c}
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

type harness struct {
	t       *testing.T
	ctrl    *Controller
	loop    *manualLoop
	clock   *fakeClock
	env     *fakeEnv
	backend *fakeBackend
	sink    *recordingSink
}

type harnessOption func(*Options, *fakeBackend)

func withBudget(d time.Duration) harnessOption {
	return func(o *Options, _ *fakeBackend) { o.QuestionTimeLimit = d }
}

func withCountSuppressed(on bool) harnessOption {
	return func(o *Options, _ *fakeBackend) { o.Policy.CountSuppressed = on }
}

func withFetchErr(err error) harnessOption {
	return func(_ *Options, b *fakeBackend) { b.fetchErr = err }
}

func newHarness(t *testing.T, serialized string, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		loop:  &manualLoop{},
		clock: newFakeClock(),
		env:   &fakeEnv{},
		backend: &fakeBackend{record: &model.AssessmentRecord{
			ID:                  "asm-1",
			Title:               "Unit quiz",
			SerializedQuestions: serialized,
		}},
		sink: &recordingSink{},
	}
	o := Options{
		SessionID:         "sess-1",
		AssessmentID:      "asm-1",
		UserID:            "user-7",
		QuestionTimeLimit: 25 * time.Second,
		BannerDuration:    3 * time.Second,
		Policy:            Policy{MaxWarnings: 2, CountSuppressed: true},
	}
	for _, fn := range opts {
		fn(&o, h.backend)
	}
	h.ctrl = NewController(o, Deps{
		Backend:     h.backend,
		Environment: h.env,
		Sink:        h.sink,
		Clock:       h.clock,
		Logger:      zerolog.Nop(),
		Go:          func(fn func()) { fn() },
	}, h.loop)
	return h
}

// loaded runs Load to completion.
func (h *harness) loaded() *harness {
	h.ctrl.Load()
	h.loop.Drain()
	return h
}

// started loads and starts the session.
func (h *harness) started() *harness {
	h.loaded()
	if err := h.ctrl.Start(); err != nil {
		h.t.Fatalf("start: %v", err)
	}
	return h
}

// elapse advances the clock one second at a time, draining the loop after each.
func (h *harness) elapse(seconds int) {
	for i := 0; i < seconds; i++ {
		h.clock.Step(time.Second)
		h.loop.Drain()
	}
}

func (h *harness) must(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
}
