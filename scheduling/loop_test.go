package scheduling

import (
	"context"
	"github.com/lefinal/minigame-host/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"testing"
	"time"
)

const timeout = 3 * time.Second

// loopSuite tests Loop.
type loopSuite struct {
	suite.Suite
	loop   *Loop
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (suite *loopSuite) SetupTest() {
	suite.loop = NewLoop(zap.New(zapcore.NewNopCore()), time.Millisecond)
	suite.ctx, suite.cancel = context.WithTimeout(context.Background(), timeout)
	suite.wg.Add(1)
	go func() {
		defer suite.wg.Done()
		suite.NoError(suite.loop.Run(suite.ctx))
	}()
}

func (suite *loopSuite) TearDownTest() {
	suite.cancel()
	suite.wg.Wait()
}

// TestDo assures that Do runs the function and waits for it.
func (suite *loopSuite) TestDo() {
	ran := false
	err := suite.loop.Do(suite.ctx, func() { ran = true })
	suite.Require().NoError(err, "should not fail")
	suite.True(ran, "should have run function")
}

// TestEvery assures that tasks are called repeatedly until cancelled.
func (suite *loopSuite) TestEvery() {
	calls := atomic.NewInt32(0)
	reachedThree := make(chan struct{})
	var task Task
	err := suite.loop.Do(suite.ctx, func() {
		task = suite.loop.Every(1, func() {
			if calls.Inc() == 3 {
				close(reachedThree)
				task.Cancel()
			}
		})
	})
	suite.Require().NoError(err, "should not fail")
	select {
	case <-suite.ctx.Done():
		suite.Fail("timeout", "timeout while waiting for calls")
	case <-reachedThree:
	}
	// Assure no more calls after cancel.
	_ = suite.loop.Do(suite.ctx, func() {})
	time.Sleep(10 * time.Millisecond)
	suite.EqualValues(3, calls.Load(), "should not call after cancel")
}

// TestPanicRecovered assures that a panicking function does not stop the
// loop.
func (suite *loopSuite) TestPanicRecovered() {
	suite.loop.Post(func() { panic("oh no") })
	ran := false
	err := suite.loop.Do(suite.ctx, func() { ran = true })
	suite.Require().NoError(err, "should not fail")
	suite.True(ran, "should still run functions")
}

func TestLoop(t *testing.T) {
	suite.Run(t, new(loopSuite))
}

func TestLoop_DoAfterStop(t *testing.T) {
	loop := NewLoop(zap.New(zapcore.NewNopCore()), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, loop.Run(ctx))
	ran := false
	err := loop.Do(context.Background(), func() { ran = true })
	assert.Error(t, err, "should fail")
	assert.False(t, ran, "should not run function")
	assert.True(t, errors.HasKind(err, errors.KindMatchStopped), "should return correct kind")
}

func TestLoop_DoContextDone(t *testing.T) {
	loop := NewLoop(zap.New(zapcore.NewNopCore()), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := loop.Do(ctx, func() {})
	assert.True(t, errors.HasKind(err, errors.KindContextAborted), "should return context aborted")
}

func TestLoop_GoWaitedOnStop(t *testing.T) {
	loop := NewLoop(zap.New(zapcore.NewNopCore()), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	finished := atomic.NewBool(false)
	loop.Go(func() {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})
	cancel()
	require.NoError(t, loop.Run(ctx))
	assert.True(t, finished.Load(), "should wait for offloaded functions")
}

func TestManualLoop_Every(t *testing.T) {
	loop := NewManualLoop()
	calls := 0
	task := loop.Every(TicksPerSecond, func() { calls++ })
	loop.Advance(TicksPerSecond - 1)
	assert.Equal(t, 0, calls, "should not call before period")
	loop.Advance(1)
	assert.Equal(t, 1, calls, "should call after period")
	loop.AdvanceSeconds(2)
	assert.Equal(t, 3, calls, "should call every period")
	task.Cancel()
	task.Cancel()
	loop.AdvanceSeconds(2)
	assert.Equal(t, 3, calls, "should not call after cancel")
	assert.Zero(t, loop.ActiveTasks(), "should have no active tasks")
}

func TestManualLoop_CancelDuringTick(t *testing.T) {
	loop := NewManualLoop()
	secondCalled := false
	var second Task
	loop.Every(1, func() { second.Cancel() })
	second = loop.Every(1, func() { secondCalled = true })
	loop.Advance(1)
	assert.False(t, secondCalled, "should not call task cancelled in same tick")
}

func TestManualLoop_PostFlushedOnAdvance(t *testing.T) {
	loop := NewManualLoop()
	ran := false
	loop.Post(func() { loop.Post(func() { ran = true }) })
	loop.Advance(1)
	assert.True(t, ran, "should run nested posts")
}
