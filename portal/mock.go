package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/minigame-host/event"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Stub mocks Portal for services that subscribe to commands and publish
// results.
type Stub struct {
	mock.Mock
	// logger is returned by Logger. A nop logger is used if not set.
	logger *zap.Logger
}

// NewStub creates a Stub that returns the given logger from Logger.
func NewStub(logger *zap.Logger) *Stub {
	return &Stub{logger: logger}
}

// Subscribe calls mock.Mock and returns the first return argument as the
// Newsletter.
func (s *Stub) Subscribe(ctx context.Context, topic Topic) *Newsletter[any] {
	return s.Called(ctx, topic).Get(0).(*Newsletter[any])
}

// Publish calls mock.Mock.
func (s *Stub) Publish(ctx context.Context, topic Topic, payload interface{}) {
	s.Called(ctx, topic, payload)
}

// Logger returns the configured logger or a nop one.
func (s *Stub) Logger() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return zap.New(zapcore.NewNopCore())
}

// NewSelfClosingMockNewsletter returns a Newsletter that never delivers and
// closes Newsletter.Receive once the context.Context is done or the Newsletter
// is unsubscribed.
func NewSelfClosingMockNewsletter(ctx context.Context) *Newsletter[any] {
	return NewSelfClosingReceivingMockNewsletter(ctx, nil)
}

// NewSelfClosingReceivingMockNewsletter returns a Newsletter that delivers
// events from forward as if they arrived from the broker. The payload of each
// forwarded event is serialized into the raw publish so that Subscribe can
// parse it like a real message. Newsletter.Receive is closed when the
// context.Context is done, the Newsletter is unsubscribed or forward is closed.
// A nil forward channel never delivers.
func NewSelfClosingReceivingMockNewsletter(ctx context.Context, forward <-chan event.Event[any]) *Newsletter[any] {
	lifetime, cancel := context.WithCancel(ctx)
	receive := make(chan event.Event[any])
	go func() {
		defer close(receive)
		for {
			var e event.Event[any]
			var more bool
			select {
			case <-lifetime.Done():
				return
			case e, more = <-forward:
			}
			if !more {
				return
			}
			select {
			case <-lifetime.Done():
				return
			case receive <- asReceived(e):
			}
		}
	}()
	return &Newsletter[any]{
		unregisterFn: cancel,
		Receive:      receive,
	}
}

// asReceived moves the payload of the given event into its raw publish.
func asReceived(e event.Event[any]) event.Event[any] {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		panic(fmt.Sprintf("marshal mock payload: %v", err))
	}
	publish := paho.Publish{}
	if e.Publish != nil {
		publish = *e.Publish
	}
	publish.Payload = raw
	return event.Event[any]{
		Publish: &publish,
	}
}
