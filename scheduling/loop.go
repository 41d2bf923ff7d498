package scheduling

import (
	"context"
	"fmt"
	"github.com/lefinal/minigame-host/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"sync"
	"time"
)

// DefaultTickInterval is the interval between two ticks of a Loop.
const DefaultTickInterval = time.Second / TicksPerSecond

// States for a request submitted via Loop.Do.
const (
	requestPending int32 = iota
	requestRunning
	requestAbandoned
)

// Loop is the single goroutine that owns all match state. Every mutation is
// performed by functions running on the loop, either as scheduled tasks or
// submitted via Post and Do.
type Loop struct {
	logger       *zap.Logger
	tickInterval time.Duration
	tasks        taskList
	// pending holds functions to run on the next wake-up.
	pending []func()
	// pendingMutex locks pending.
	pendingMutex sync.Mutex
	// wake is notified when pending is non-empty.
	wake chan struct{}
	// done is closed when Run returns.
	done chan struct{}
	// offloaded waits for functions started with Go.
	offloaded sync.WaitGroup
}

// NewLoop creates a new Loop that ticks in the given interval. Start it with
// Run.
func NewLoop(logger *zap.Logger, tickInterval time.Duration) *Loop {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Loop{
		logger:       logger,
		tickInterval: tickInterval,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Run the loop until the given context.Context is done. Before returning, it
// waits for all functions started with Go.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()
	defer l.offloaded.Wait()
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			// Run what is left so that Do-callers do not hang.
			l.runPending()
			return nil
		case <-l.wake:
			l.runPending()
		case <-ticker.C:
			l.runPending()
			start := time.Now()
			l.safeRun(l.tasks.advance)
			if took := time.Since(start); took > l.tickInterval {
				l.logger.Warn(fmt.Sprintf("tick took %v which is longer than the tick interval", took),
					zap.Duration("tick_interval", l.tickInterval))
			}
		}
	}
}

// Every runs fn every period ticks. Must only be called from the loop.
func (l *Loop) Every(period int, fn func()) Task {
	return l.tasks.schedule(period, fn)
}

// Post runs the given function on the loop. Functions posted after the loop
// has stopped are dropped.
func (l *Loop) Post(fn func()) {
	l.pendingMutex.Lock()
	l.pending = append(l.pending, fn)
	l.pendingMutex.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs the given function on the loop and waits until it finished. If the
// context.Context is done before the function was started, it will not be run.
// Never call Do from the loop itself as this would deadlock.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	state := atomic.NewInt32(requestPending)
	finished := make(chan struct{})
	l.Post(func() {
		if !state.CAS(requestPending, requestRunning) {
			return
		}
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
	case <-l.done:
	}
	if state.CAS(requestPending, requestAbandoned) {
		if ctx.Err() != nil {
			return errors.NewContextAbortedError("wait for loop")
		}
		return errors.Error{
			Code:    errors.ErrAborted,
			Kind:    errors.KindMatchStopped,
			Message: "loop not running",
		}
	}
	// Already running, so we need to wait.
	<-finished
	return nil
}

// Go runs the given function in a new goroutine. Run waits for it before
// returning.
func (l *Loop) Go(fn func()) {
	l.offloaded.Add(1)
	go func() {
		defer l.offloaded.Done()
		fn()
	}()
}

// runPending runs all pending functions.
func (l *Loop) runPending() {
	l.pendingMutex.Lock()
	toRun := l.pending
	l.pending = nil
	l.pendingMutex.Unlock()
	for _, fn := range toRun {
		l.safeRun(fn)
	}
}

// safeRun runs the given function and recovers from panics as a single broken
// callback must not take down all matches.
func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			errors.Log(l.logger, errors.Error{
				Code:    errors.ErrInternal,
				Kind:    errors.KindUnexpected,
				Message: "recovered from panic in loop",
				Details: errors.Details{"panic": fmt.Sprintf("%v", r)},
			})
		}
	}()
	fn()
}
