package scheduling

import "context"

// ManualLoop is an Executor that only advances when told to. Functions passed
// to Go are run synchronously. This is meant for tests that need full control
// over timing.
type ManualLoop struct {
	tasks   taskList
	pending []func()
}

// NewManualLoop creates a new ManualLoop at tick zero.
func NewManualLoop() *ManualLoop {
	return &ManualLoop{}
}

// Every schedules fn every period ticks.
func (l *ManualLoop) Every(period int, fn func()) Task {
	return l.tasks.schedule(period, fn)
}

// Post queues fn until the next Flush or Advance.
func (l *ManualLoop) Post(fn func()) {
	l.pending = append(l.pending, fn)
}

// Go runs fn immediately.
func (l *ManualLoop) Go(fn func()) {
	fn()
}

// Do runs fn immediately followed by all pending functions.
func (l *ManualLoop) Do(_ context.Context, fn func()) error {
	fn()
	l.Flush()
	return nil
}

// Flush runs all pending functions including ones posted while flushing.
func (l *ManualLoop) Flush() {
	for len(l.pending) > 0 {
		toRun := l.pending
		l.pending = nil
		for _, fn := range toRun {
			fn()
		}
	}
}

// Advance performs the given amount of ticks.
func (l *ManualLoop) Advance(ticks int) {
	for i := 0; i < ticks; i++ {
		l.Flush()
		l.tasks.advance()
	}
	l.Flush()
}

// AdvanceSeconds performs the ticks for the given amount of seconds.
func (l *ManualLoop) AdvanceSeconds(seconds int) {
	l.Advance(seconds * TicksPerSecond)
}

// Tick returns the current tick.
func (l *ManualLoop) Tick() uint64 {
	return l.tasks.tick
}

// ActiveTasks returns the number of scheduled tasks that are not cancelled.
func (l *ManualLoop) ActiveTasks() int {
	return l.tasks.active()
}
