// Package logpublishsvc publishes log entries for remote administration.
package logpublishsvc

import (
	"context"
	"github.com/lefinal/minigame-host/event"
	"github.com/lefinal/minigame-host/logging"
	"github.com/lefinal/minigame-host/portal"
	"github.com/lefinal/minigame-host/service"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"time"
)

// topicLogPublish is where each log entry is published to.
const topicLogPublish portal.Topic = "minigame/log/next"

// flushDelay is how long entries are collected after the first one of a batch
// arrives.
const flushDelay = 100 * time.Millisecond

// maxBatchSize forces a flush before flushDelay passes.
const maxBatchSize = 64

// logPublishService forwards entries from logEntriesIn to topicLogPublish in
// batches.
type logPublishService struct {
	logger       *zap.Logger
	portal       portal.Portal
	logEntriesIn <-chan logging.LogEntry
}

// New creates the service reading from the given channel as returned by
// logging.NewPublishingLogger. The portal.Portal must log with
// logging.OmitPublish.
func New(logger *zap.Logger, portal portal.Portal, logEntriesIn <-chan logging.LogEntry) service.Service {
	return &logPublishService{
		logger:       logger,
		portal:       portal,
		logEntriesIn: logEntriesIn,
	}
}

// Run until the context.Context is done or the entry channel is closed.
// Collected entries are flushed before returning if the channel was closed.
func (s *logPublishService) Run(ctx context.Context) error {
	batch := make([]logging.LogEntry, 0, maxBatchSize)
	var flush <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-flush:
			s.publish(ctx, batch)
			batch = batch[:0]
			flush = nil
		case entry, more := <-s.logEntriesIn:
			if !more {
				s.publish(ctx, batch)
				return nil
			}
			batch = append(batch, entry)
			if len(batch) >= maxBatchSize {
				s.publish(ctx, batch)
				batch = batch[:0]
				flush = nil
			} else if flush == nil {
				flush = time.After(flushDelay)
			}
		}
	}
}

// publish each entry of the batch in order.
func (s *logPublishService) publish(ctx context.Context, batch []logging.LogEntry) {
	events := lo.Map(batch, func(entry logging.LogEntry, _ int) event.NextLogEntryEvent {
		return event.NextLogEntryEvent{
			Time:       entry.Time,
			Message:    entry.Message,
			Level:      entry.Level.String(),
			LoggerName: entry.LoggerName,
			Fields:     entry.Fields,
		}
	})
	for _, e := range events {
		s.portal.Publish(ctx, topicLogPublish, e)
	}
}
