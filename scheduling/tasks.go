package scheduling

import (
	"go.uber.org/atomic"
)

// TicksPerSecond is the amount of ticks the loop performs per second.
const TicksPerSecond = 20

// Task is a handle for a repeating callback scheduled with Scheduler.Every.
type Task interface {
	// Cancel the task. Calling it multiple times is safe. A cancelled task will
	// not be called again, even if it is due in the current tick.
	Cancel()
}

// Scheduler schedules repeating callbacks on a tick loop.
type Scheduler interface {
	// Every runs fn every period ticks with the first call being period ticks
	// from now. It must only be called from the loop itself.
	Every(period int, fn func()) Task
}

// Executor is a Scheduler that also allows running functions on the loop and
// offloading blocking work from it.
type Executor interface {
	Scheduler
	// Post runs the given function on the loop as soon as possible. It is safe to
	// call from any goroutine, including the loop itself.
	Post(fn func())
	// Go runs the given function outside the loop. Use it for blocking I/O.
	Go(fn func())
}

// task is a scheduled repeating callback.
type task struct {
	period    uint64
	next      uint64
	fn        func()
	cancelled *atomic.Bool
}

func (t *task) Cancel() {
	t.cancelled.Store(true)
}

// taskList holds scheduled tasks and runs due ones. It is not safe for
// concurrent use.
type taskList struct {
	tick  uint64
	tasks []*task
}

func (tl *taskList) schedule(period int, fn func()) *task {
	if period < 1 {
		period = 1
	}
	t := &task{
		period:    uint64(period),
		next:      tl.tick + uint64(period),
		fn:        fn,
		cancelled: atomic.NewBool(false),
	}
	tl.tasks = append(tl.tasks, t)
	return t
}

// advance performs one tick and calls all due tasks. Tasks scheduled while
// running callbacks are first considered in the next tick.
func (tl *taskList) advance() {
	tl.tick++
	due := make([]*task, len(tl.tasks))
	copy(due, tl.tasks)
	for _, t := range due {
		if t.cancelled.Load() || t.next > tl.tick {
			continue
		}
		t.next += t.period
		t.fn()
	}
	// Drop cancelled ones.
	alive := tl.tasks[:0]
	for _, t := range tl.tasks {
		if !t.cancelled.Load() {
			alive = append(alive, t)
		}
	}
	for i := len(alive); i < len(tl.tasks); i++ {
		tl.tasks[i] = nil
	}
	tl.tasks = alive
}

// active returns the number of tasks that are not cancelled.
func (tl *taskList) active() int {
	count := 0
	for _, t := range tl.tasks {
		if !t.cancelled.Load() {
			count++
		}
	}
	return count
}
