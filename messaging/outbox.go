// Package messaging delivers player messages and avatar commands to the host
// runtime over the portal. Calls from the loop only enqueue and never block.
package messaging

import (
	"context"
	"fmt"
	"github.com/lefinal/minigame-host/portal"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"time"
)

// DefaultOutboxSize is the default capacity of the Outbox queue.
const DefaultOutboxSize = 1024

// DefaultDrainTimeout is how long Run keeps publishing queued payloads after
// its context.Context is done.
const DefaultDrainTimeout = 3 * time.Second

// TopicPlayerMessages returns the topic for messages of the given player.
func TopicPlayerMessages(playerID string) portal.Topic {
	return portal.Topic(fmt.Sprintf("minigame/players/%s/messages", playerID))
}

// TopicPlayerAvatar returns the topic for avatar commands of the given player.
func TopicPlayerAvatar(playerID string) portal.Topic {
	return portal.Topic(fmt.Sprintf("minigame/players/%s/avatar", playerID))
}

// outgoing is a queued publish.
type outgoing struct {
	topic   portal.Topic
	payload interface{}
}

// Outbox queues publishes and performs them in Run. If the queue is full,
// publishes are dropped.
type Outbox struct {
	logger  *zap.Logger
	portal  portal.Portal
	queue   chan outgoing
	dropped *atomic.Int64
	// drainTimeout bounds delivering the remaining queue when shutting down.
	drainTimeout time.Duration
}

// NewOutbox creates a new Outbox with the given queue size. Run it with Run.
func NewOutbox(logger *zap.Logger, portal portal.Portal, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		logger:  logger,
		portal:  portal,
		queue:        make(chan outgoing, size),
		dropped:      atomic.NewInt64(0),
		drainTimeout: DefaultDrainTimeout,
	}
}

// Enqueue the payload for publishing to the given topic. It returns false if
// the queue is full and the payload was dropped.
func (o *Outbox) Enqueue(topic portal.Topic, payload interface{}) bool {
	select {
	case o.queue <- outgoing{topic: topic, payload: payload}:
		return true
	default:
		dropped := o.dropped.Inc()
		o.logger.Warn("outbox full, dropping publish", zap.Any("topic", topic), zap.Int64("dropped_total", dropped))
		return false
	}
}

// Run publishes queued payloads until the given context.Context is done.
// Payloads that are still queued then are published within DefaultDrainTimeout
// so that final notifications are not lost. The portal must stay open until Run
// returns.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			o.drain(nil)
			return nil
		case out := <-o.queue:
			if ctx.Err() != nil {
				o.drain(&out)
				return nil
			}
			o.portal.Publish(ctx, out.topic, out.payload)
		}
	}
}

// drain publishes the given payload, if any, and all queued ones until the
// queue is empty or the drain timeout exceeded.
func (o *Outbox) drain(first *outgoing) {
	drainCtx, cancel := context.WithTimeout(context.Background(), o.drainTimeout)
	defer cancel()
	published := 0
	for {
		var out outgoing
		if first != nil {
			out = *first
			first = nil
		} else {
			select {
			case out = <-o.queue:
			default:
				if published > 0 {
					o.logger.Debug(fmt.Sprintf("drained %d publish(es)", published))
				}
				return
			}
		}
		if drainCtx.Err() != nil {
			o.logger.Warn("drain timeout exceeded, dropping remaining publishes",
				zap.Int("published", published), zap.Int("dropped", o.Pending()+1))
			return
		}
		o.portal.Publish(drainCtx, out.topic, out.payload)
		published++
	}
}

// Dropped returns the total number of dropped publishes.
func (o *Outbox) Dropped() int64 {
	return o.dropped.Load()
}

// Pending returns the number of queued publishes.
func (o *Outbox) Pending() int {
	return len(o.queue)
}
