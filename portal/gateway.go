package portal

import (
	"context"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/event"
	"go.uber.org/zap"
	"sync"
)

// mqttKiosk sends subscription requests to the MQTT server.
type mqttKiosk interface {
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Unsubscribe(ctx context.Context, u *paho.Unsubscribe) (*paho.Unsuback, error)
}

// mqttInboundRouter abstracts paho.Router with only stuff that is needed for
// portalGateway.
type mqttInboundRouter interface {
	RegisterHandler(topic string, handler paho.MessageHandler)
	UnregisterHandler(topic string)
}

// portalGatewayMQTTBridge registers handlers for topics and subscribes at the
// MQTT server.
type portalGatewayMQTTBridge struct {
	logger        *zap.Logger
	kiosk         mqttKiosk
	inboundRouter mqttInboundRouter
}

// subscribeAtServer requests the subscription from the MQTT server. Failures
// are logged as the subscription is renewed when the connection is
// (re)established.
func (bridge *portalGatewayMQTTBridge) subscribeAtServer(ctx context.Context, topic Topic) {
	timeout, cancel := context.WithTimeout(ctx, brokerTimeout)
	defer cancel()
	_, err := bridge.kiosk.Subscribe(timeout, &paho.Subscribe{
		Subscriptions: map[string]paho.SubscribeOptions{
			string(topic): {QoS: mqttQOS},
		},
	})
	if err != nil {
		errors.Log(bridge.logger, errors.FromErr("subscribe at mqtt server", errors.ErrCommunication, err,
			errors.Details{"topic": topic}))
	}
}

func (bridge *portalGatewayMQTTBridge) register(topic Topic, handler paho.MessageHandler) {
	bridge.inboundRouter.RegisterHandler(string(topic), handler)
	bridge.subscribeAtServer(context.Background(), topic)
}

func (bridge *portalGatewayMQTTBridge) unregister(topic Topic) {
	bridge.inboundRouter.UnregisterHandler(string(topic))
	timeout, cancel := context.WithTimeout(context.Background(), brokerTimeout)
	defer cancel()
	_, err := bridge.kiosk.Unsubscribe(timeout, &paho.Unsubscribe{Topics: []string{string(topic)}})
	if err != nil {
		errors.Log(bridge.logger, errors.FromErr("unsubscribe at mqtt server", errors.ErrCommunication, err,
			errors.Details{"topic": topic}))
	}
}

// subscription is a container for the lifetime context.Context and the channel
// to forward the received paho.Publish message to.
type subscription struct {
	lifetime context.Context
	forward  chan<- event.Event[any]
}

// registeredHandler is a container for subscriptions to serve.
type registeredHandler struct {
	// subscriptions contains all active subscriptions that are served by the
	// handler.
	subscriptions map[*subscription]struct{}
	// subscriptionsMutex locks subscriptions. It is read-locked while forwarding,
	// so forward channels can be closed safely once write-locked.
	subscriptionsMutex sync.RWMutex
}

// Handler returns a paho.MessageHandler that forwards to all subscriptions for
// the handler.
func (handler *registeredHandler) Handler() paho.MessageHandler {
	return func(publish *paho.Publish) {
		// Forward to all listeners.
		var allForwarded sync.WaitGroup
		handler.subscriptionsMutex.RLock()
		defer handler.subscriptionsMutex.RUnlock()
		for sub := range handler.subscriptions {
			allForwarded.Add(1)
			go func(sub *subscription) {
				defer allForwarded.Done()
				select {
				case <-sub.lifetime.Done():
				case sub.forward <- event.Event[any]{Publish: publish}:
				}
			}(sub)
		}
		allForwarded.Wait()
	}
}

// portalGateway is used for multiplexing MQTT subscriptions and forwarding
// received messages according to them.
type portalGateway struct {
	logger *zap.Logger
	bridge *portalGatewayMQTTBridge
	// registeredHandlers holds all handlers by subscribed topics.
	registeredHandlers map[Topic]*registeredHandler
	// registeredHandlersMutex locks registeredHandlers.
	registeredHandlersMutex sync.Mutex
}

func newPortalGateway(logger *zap.Logger, bridge *portalGatewayMQTTBridge) *portalGateway {
	return &portalGateway{
		logger:             logger,
		bridge:             bridge,
		registeredHandlers: make(map[Topic]*registeredHandler),
	}
}

// subscribe for the given Topic. Messages are forwarded to the returned channel
// until the context.Context is done. Then the channel is closed.
func (gateway *portalGateway) subscribe(lifetime context.Context, topic Topic) <-chan event.Event[any] {
	gateway.registeredHandlersMutex.Lock()
	defer gateway.registeredHandlersMutex.Unlock()
	// Check if already existing.
	handlerRef, ok := gateway.registeredHandlers[topic]
	if !ok {
		handlerRef = &registeredHandler{subscriptions: make(map[*subscription]struct{})}
		gateway.registeredHandlers[topic] = handlerRef
		gateway.bridge.register(topic, handlerRef.Handler())
		gateway.logger.Debug("subscribed to topic", zap.Any("topic", topic))
	}
	// Add subscription.
	forward := make(chan event.Event[any])
	sub := &subscription{
		lifetime: lifetime,
		forward:  forward,
	}
	handlerRef.subscriptionsMutex.Lock()
	handlerRef.subscriptions[sub] = struct{}{}
	handlerRef.subscriptionsMutex.Unlock()
	// Unsubscribe when lifetime done.
	go func() {
		<-lifetime.Done()
		gateway.unsubscribe(topic, sub)
	}()
	return forward
}

// unsubscribe the given subscription for the Topic. Only portalGateway should
// call this!
func (gateway *portalGateway) unsubscribe(topic Topic, sub *subscription) {
	gateway.registeredHandlersMutex.Lock()
	defer gateway.registeredHandlersMutex.Unlock()
	// Get handler.
	handler, ok := gateway.registeredHandlers[topic]
	if !ok {
		errors.Log(gateway.logger, errors.NewInternalError("unsubscribe called for unknown registered handler",
			errors.Details{"topic": topic}))
		return
	}
	// Remove subscription.
	handler.subscriptionsMutex.Lock()
	if _, ok := handler.subscriptions[sub]; !ok {
		handler.subscriptionsMutex.Unlock()
		errors.Log(gateway.logger, errors.NewInternalError("unsubscribe with unknown subscription for handler",
			errors.Details{"topic": topic}))
		return
	}
	delete(handler.subscriptions, sub)
	if sub.forward != nil {
		close(sub.forward)
	}
	subscriptionsLeft := len(handler.subscriptions)
	handler.subscriptionsMutex.Unlock()
	// Check if subscriptions left as then we do not need to unregister the handler.
	if subscriptionsLeft > 0 {
		return
	}
	delete(gateway.registeredHandlers, topic)
	gateway.bridge.unregister(topic)
	gateway.logger.Debug("unsubscribed from topic", zap.Any("topic", topic))
}

// resubscribeAll requests subscriptions for all registered topics from the MQTT
// server. This is needed after (re)connecting.
func (gateway *portalGateway) resubscribeAll(ctx context.Context) {
	gateway.registeredHandlersMutex.Lock()
	topics := make([]Topic, 0, len(gateway.registeredHandlers))
	for topic := range gateway.registeredHandlers {
		topics = append(topics, topic)
	}
	gateway.registeredHandlersMutex.Unlock()
	for _, topic := range topics {
		gateway.bridge.subscribeAtServer(ctx, topic)
	}
}
