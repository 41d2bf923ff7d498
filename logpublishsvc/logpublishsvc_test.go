package logpublishsvc

import (
	"context"
	"github.com/lefinal/minigame-host/event"
	"github.com/lefinal/minigame-host/logging"
	"github.com/lefinal/minigame-host/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"testing"
	"time"
)

const timeout = 3 * time.Second

func TestNew(t *testing.T) {
	logger := zap.New(zapcore.NewNopCore())
	portalStub := &portal.Stub{}
	logEntriesIn := make(<-chan logging.LogEntry)
	s := New(logger, portalStub, logEntriesIn).(*logPublishService)
	require.NotNil(t, s, "should create")
	assert.Equal(t, logger, s.logger, "should set correct logger")
	assert.Equal(t, portalStub, s.portal, "should set correct portal")
	assert.Equal(t, logEntriesIn, s.logEntriesIn, "should set correct log entries in channel")
}

func TestPublishesCollectedEntries(t *testing.T) {
	portalStub := &portal.Stub{}
	logEntriesIn := make(chan logging.LogEntry, 4)
	s := New(zap.New(zapcore.NewNopCore()), portalStub, logEntriesIn)
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	now := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	published := atomic.NewInt32(0)
	portalStub.On("Publish", mock.Anything, topicLogPublish, mock.Anything).Run(func(_ mock.Arguments) {
		if published.Inc() == 2 {
			cancel()
		}
	})
	logEntriesIn <- logging.LogEntry{Time: now, Message: "first", Level: zapcore.WarnLevel, LoggerName: "games"}
	logEntriesIn <- logging.LogEntry{Time: now, Message: "second", Level: zapcore.ErrorLevel}
	err := s.Run(timeout)
	require.NoError(t, err, "should not fail")
	assert.Equal(t, context.Canceled, timeout.Err(), "should not time out")
	portalStub.AssertCalled(t, "Publish", mock.Anything, topicLogPublish, event.NextLogEntryEvent{
		Time:       now,
		Message:    "first",
		Level:      "warn",
		LoggerName: "games",
	})
	portalStub.AssertCalled(t, "Publish", mock.Anything, topicLogPublish, event.NextLogEntryEvent{
		Time:    now,
		Message: "second",
		Level:   "error",
	})
}

func TestStopsOnClosedChannel(t *testing.T) {
	logEntriesIn := make(chan logging.LogEntry)
	close(logEntriesIn)
	s := New(zap.New(zapcore.NewNopCore()), &portal.Stub{}, logEntriesIn)
	assert.NoError(t, s.Run(context.Background()), "should return")
}

func TestFlushesOnClosedChannel(t *testing.T) {
	portalStub := &portal.Stub{}
	logEntriesIn := make(chan logging.LogEntry, 2)
	portalStub.On("Publish", mock.Anything, topicLogPublish, mock.Anything)
	logEntriesIn <- logging.LogEntry{Message: "first", Level: zapcore.WarnLevel}
	logEntriesIn <- logging.LogEntry{Message: "second", Level: zapcore.WarnLevel}
	close(logEntriesIn)
	s := New(zap.New(zapcore.NewNopCore()), portalStub, logEntriesIn)
	require.NoError(t, s.Run(context.Background()), "should return")
	portalStub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestFlushesFullBatch(t *testing.T) {
	portalStub := &portal.Stub{}
	logEntriesIn := make(chan logging.LogEntry, maxBatchSize)
	s := New(zap.New(zapcore.NewNopCore()), portalStub, logEntriesIn)
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	published := atomic.NewInt32(0)
	portalStub.On("Publish", mock.Anything, topicLogPublish, mock.Anything).Run(func(_ mock.Arguments) {
		if published.Inc() == maxBatchSize {
			cancel()
		}
	})
	for i := 0; i < maxBatchSize; i++ {
		logEntriesIn <- logging.LogEntry{Message: "entry", Level: zapcore.InfoLevel}
	}
	require.NoError(t, s.Run(timeout), "should not fail")
	assert.Equal(t, context.Canceled, timeout.Err(), "should not time out")
	assert.EqualValues(t, maxBatchSize, published.Load(), "should publish all entries")
}
