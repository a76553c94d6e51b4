package session

import (
	"context"

	"github.com/edusync/proctor/internal/model"
)

// Session runs a Controller on its own event loop and exposes it to other
// goroutines. Every method is safe for concurrent use.
type Session struct {
	ctrl     *Controller
	loop     *EventLoop
	finished chan struct{}
}

// Open starts the event loop for a new session. The loop stops when ctx is
// cancelled or Close is called; either way the controller is torn down.
func Open(ctx context.Context, opts Options, deps Deps) *Session {
	loop := NewEventLoop(64)
	s := &Session{
		ctrl:     NewController(opts, deps, loop),
		loop:     loop,
		finished: make(chan struct{}),
	}

	go func() {
		defer close(s.finished)
		loop.Run(ctx)
		// The loop has exited, so this goroutine is now the only one
		// touching the controller.
		s.ctrl.Close()
	}()

	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.ctrl.opts.SessionID }

// Do runs fn on the event loop and waits for its result.
func (s *Session) Do(fn func(c *Controller) error) error {
	errc := make(chan error, 1)
	if !s.loop.Post(func() { errc <- fn(s.ctrl) }) {
		return ErrSessionClosed
	}

	select {
	case err := <-errc:
		return err
	case <-s.loop.Done():
		select {
		case err := <-errc:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

func (s *Session) Load() error {
	return s.Do(func(c *Controller) error {
		c.Load()
		return nil
	})
}

func (s *Session) Start() error {
	return s.Do(func(c *Controller) error { return c.Start() })
}

func (s *Session) SelectAnswer(question, option int) error {
	return s.Do(func(c *Controller) error { return c.SelectAnswer(question, option) })
}

func (s *Session) Advance() error {
	return s.Do(func(c *Controller) error { return c.Advance() })
}

func (s *Session) Submit() error {
	return s.Do(func(c *Controller) error { return c.Submit() })
}

func (s *Session) ReportSignal(sig model.Signal, key string) error {
	return s.Do(func(c *Controller) error {
		c.ReportSignal(sig, key)
		return nil
	})
}

// Snapshot returns the current read model.
func (s *Session) Snapshot() (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.Do(func(c *Controller) error {
		snap = c.Snapshot()
		return nil
	})
	return snap, err
}

// Close tears the session down and waits for the loop to exit.
func (s *Session) Close() {
	s.loop.Stop()
	<-s.finished
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.finished
}
