package session

import (
	"context"
	"sync"
)

// Dispatcher hands work to the event loop that owns a Controller.
// Post reports false once the loop no longer accepts work.
type Dispatcher interface {
	Post(fn func()) bool
}

// EventLoop executes posted closures one at a time on a single goroutine.
type EventLoop struct {
	events   chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewEventLoop creates a loop with the given queue depth.
func NewEventLoop(buffer int) *EventLoop {
	return &EventLoop{
		events: make(chan func(), buffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Post enqueues fn. It blocks while the queue is full.
func (l *EventLoop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}

	select {
	case <-l.quit:
		return false
	case l.events <- fn:
		return true
	}
}

// Run processes events until ctx is cancelled or Stop is called. Either
// way Post rejects work afterwards.
func (l *EventLoop) Run(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.quit:
			return
		case fn := <-l.events:
			fn()
		}
	}
}

// Stop makes Run return after the event currently executing.
func (l *EventLoop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

// Done is closed when Run has returned.
func (l *EventLoop) Done() <-chan struct{} {
	return l.done
}
