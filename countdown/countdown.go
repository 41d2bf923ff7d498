// Package countdown provides cancellable second-based countdowns that run on
// a scheduling.Scheduler.
package countdown

import (
	"github.com/lefinal/minigame-host/scheduling"
)

// Kind is the variant of a Countdown. It determines the default duration.
type Kind string

const (
	// KindWaiting runs in the waiting room once enough players joined.
	KindWaiting Kind = "waiting"
	// KindActiveRound is the hard time limit of a round.
	KindActiveRound Kind = "active-round"
	// KindProtection is the grace period at the start of a round.
	KindProtection Kind = "protection"
	// KindEnding is the delay after a round before the match is torn down.
	KindEnding Kind = "ending"
)

// Default durations in seconds.
const (
	DefaultWaitingSeconds     = 30
	DefaultActiveRoundSeconds = 600
	DefaultProtectionSeconds  = 20
	DefaultEndingSeconds      = 10
)

// DefaultSeconds returns the default duration in seconds for the given Kind.
func DefaultSeconds(kind Kind) int {
	switch kind {
	case KindWaiting:
		return DefaultWaitingSeconds
	case KindActiveRound:
		return DefaultActiveRoundSeconds
	case KindProtection:
		return DefaultProtectionSeconds
	case KindEnding:
		return DefaultEndingSeconds
	}
	return 0
}

// Config is the configuration for a Countdown.
type Config struct {
	// Kind of the countdown.
	Kind Kind
	// Seconds is the duration the countdown starts with. If not set, the default
	// for Kind is used.
	Seconds int
	// OnTick is called every second with the remaining seconds, except for the
	// final one where OnExpire is called instead.
	OnTick func(remaining int)
	// OnExpire is called when the remaining seconds reach zero. The countdown is
	// not running anymore when this is called.
	OnExpire func()
}

// Countdown counts down seconds on a scheduling.Scheduler. It must only be used
// from the loop the scheduler belongs to.
type Countdown struct {
	scheduler scheduling.Scheduler
	kind      Kind
	// seconds is the duration to reset to when starting or stopping.
	seconds   int
	remaining int
	onTick    func(remaining int)
	onExpire  func()
	// task is the scheduled task. If nil, the countdown is not running.
	task scheduling.Task
}

// New creates a new Countdown that is not running.
func New(scheduler scheduling.Scheduler, config Config) *Countdown {
	seconds := config.Seconds
	if seconds <= 0 {
		seconds = DefaultSeconds(config.Kind)
	}
	c := &Countdown{
		scheduler: scheduler,
		kind:      config.Kind,
		seconds:   seconds,
		remaining: seconds,
		onTick:    config.OnTick,
		onExpire:  config.OnExpire,
	}
	if c.onTick == nil {
		c.onTick = func(_ int) {}
	}
	if c.onExpire == nil {
		c.onExpire = func() {}
	}
	return c
}

// Kind returns the Kind of the countdown.
func (c *Countdown) Kind() Kind {
	return c.kind
}

// Start the countdown with its full duration. If it is already running, this is
// a no-op and false is returned.
func (c *Countdown) Start() bool {
	if c.task != nil {
		return false
	}
	c.remaining = c.seconds
	c.task = c.scheduler.Every(scheduling.TicksPerSecond, c.tick)
	return true
}

// Stop the countdown and reset it to its full duration. If it is not running,
// this is a no-op and false is returned.
func (c *Countdown) Stop() bool {
	if c.task == nil {
		return false
	}
	c.task.Cancel()
	c.task = nil
	c.remaining = c.seconds
	return true
}

// IsRunning describes whether the countdown is currently running.
func (c *Countdown) IsRunning() bool {
	return c.task != nil
}

// Remaining returns the remaining seconds.
func (c *Countdown) Remaining() int {
	return c.remaining
}

// Shorten sets the remaining seconds to the given value if the countdown is
// running and the value is less than the current remaining time. It never
// lengthens the countdown. It returns whether the remaining time changed.
func (c *Countdown) Shorten(seconds int) bool {
	if c.task == nil {
		return false
	}
	if seconds < 1 {
		seconds = 1
	}
	if seconds >= c.remaining {
		return false
	}
	c.remaining = seconds
	return true
}

func (c *Countdown) tick() {
	c.remaining--
	if c.remaining > 0 {
		c.onTick(c.remaining)
		return
	}
	c.remaining = 0
	c.task.Cancel()
	c.task = nil
	c.onExpire()
}
