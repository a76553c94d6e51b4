package session

import (
	"sync"
	"time"
)

// Clock schedules callbacks. Callbacks run on clock-owned goroutines and must
// hand their work to the event loop.
type Clock interface {
	Now() time.Time
	// Every calls fn once per period until stop is called.
	Every(period time.Duration, fn func()) (stop func())
	// AfterFunc calls fn once after d unless stop is called first.
	AfterFunc(d time.Duration, fn func()) (stop func())
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Every(period time.Duration, fn func()) func() {
	ticker := time.NewTicker(period)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (SystemClock) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
