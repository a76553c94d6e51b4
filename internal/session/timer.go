package session

import "time"

// Countdown is the per-question clock. It runs on the event loop: ticks from
// the clock are posted back to the loop tagged with the generation that
// scheduled them, and a tick from an older generation is dropped.
type Countdown struct {
	clock  Clock
	post   Dispatcher
	budget int

	remaining  int
	generation uint64
	running    bool
	stop       func()

	onTick   func(remaining int)
	onExpire func()
}

// NewCountdown creates a stopped countdown with a whole-second budget.
func NewCountdown(clock Clock, post Dispatcher, budget time.Duration, onTick func(int), onExpire func()) *Countdown {
	secs := int(budget / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &Countdown{
		clock:     clock,
		post:      post,
		budget:    secs,
		remaining: secs,
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Reset restarts the clock at the full budget. Any tick still queued for the
// previous question is invalidated before this returns.
func (c *Countdown) Reset() {
	c.halt()
	c.remaining = c.budget
	c.running = true

	gen := c.generation
	c.stop = c.clock.Every(time.Second, func() {
		c.post.Post(func() { c.tick(gen) })
	})
}

// Stop halts the clock. Remaining time is kept for display.
func (c *Countdown) Stop() {
	c.halt()
}

// Remaining is the time left for the current question, in seconds.
func (c *Countdown) Remaining() int { return c.remaining }

// Budget is the per-question allowance, in seconds.
func (c *Countdown) Budget() int { return c.budget }

// Running reports whether ticks are being delivered.
func (c *Countdown) Running() bool { return c.running }

func (c *Countdown) halt() {
	c.generation++
	c.running = false
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

func (c *Countdown) tick(gen uint64) {
	if !c.running || gen != c.generation {
		return
	}

	if c.remaining > 0 {
		c.remaining--
	}

	if c.remaining > 0 {
		if c.onTick != nil {
			c.onTick(c.remaining)
		}
		return
	}

	// Expired: fire once, then wait for the next Reset.
	c.halt()
	if c.onTick != nil {
		c.onTick(0)
	}
	if c.onExpire != nil {
		c.onExpire()
	}
}
