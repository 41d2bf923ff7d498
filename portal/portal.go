// Package portal provides publish/subscribe over MQTT. A Base holds the
// connection to the broker and multiplexes subscriptions of all portals created
// from it.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/event"
	"go.uber.org/zap"
	"net/url"
	"sync"
	"time"
)

// DefaultClientID is the MQTT client id if none is configured.
const DefaultClientID = "minigame-host"

const mqttKeepAlive = 8

const mqttQOS = 0

// brokerTimeout is the timeout for subscribe and unsubscribe requests.
const brokerTimeout = 5 * time.Second

// Topic is an MQTT topic.
type Topic string

// Config is the config for the Base.
type Config struct {
	// MQTTAddr is the address where the MQTT-server is found.
	MQTTAddr string
	// ClientID is the MQTT client id. If not set, DefaultClientID is used.
	ClientID string
}

// Newsletter is used with Portal.Subscribe in order to subscribe to topics.
type Newsletter[payloadT any] struct {
	unregisterFn func()
	// Receive receives when a new message for the subscribed topic was received.
	// When the Newsletter is unsubscribed, the Receive-channel will be closed.
	Receive <-chan event.Event[payloadT]
}

// Unsubscribe the Newsletter. Receive will be closed.
func (sub *Newsletter[payload]) Unsubscribe() {
	sub.unregisterFn()
}

// publisher is used for publishing MQTT events.
type publisher interface {
	Publish(ctx context.Context, publish *paho.Publish) (*paho.PublishResponse, error)
}

// Base is a wrapper for all connection related stuff for a Portal. Using the
// Base, you only need to Open the Base and then use portals via NewPortal.
type Base interface {
	// Open the connection. Stays opened until the given context.Context is done.
	Open(ctx context.Context) error
	// NewPortal creates a new Portal that uses the connection from the Base. The
	// fields are added to the logger of the Portal.
	NewPortal(name string, fields ...zap.Field) Portal
}

// errNotConnected is returned for broker requests before Base.Open established
// the connection.
var errNotConnected = errors.Error{
	Code:    errors.ErrCommunication,
	Message: "not connected to mqtt server",
}

type basePortal struct {
	logger *zap.Logger
	config Config
	// brokerURL is the URL of the MQTT broker.
	brokerURL *url.URL
	// mqttRouter is the router that paho dispatches received messages to.
	mqttRouter *paho.StandardRouter
	// gateway is responsible for registering subscription requests as well as
	// multiplexing and forwarding messages.
	gateway *portalGateway
	// conn is the connection to the broker once opened.
	conn *autopaho.ConnectionManager
	// connMutex locks conn.
	connMutex sync.RWMutex
}

// Portal allows subscribing and publishing.
type Portal interface {
	// Subscribe returns a Newsletter for the given Topic.
	Subscribe(ctx context.Context, topic Topic) *Newsletter[any]
	// Publish the given payload to the Topic. It will catch any errors during
	// publishing and log them using the Logger.
	Publish(ctx context.Context, topic Topic, payload interface{})
	// Logger is needed in order to provide error logging for Subscribe as generics
	// are not supported for methods.
	Logger() *zap.Logger
}

// NewBase creates a Base with the given Config. Open it with Base.Open.
// Portals may be created and subscribed to before opening. Subscriptions are
// sent to the broker each time the connection is established.
func NewBase(logger *zap.Logger, config Config) (Base, error) {
	// Parse URL.
	brokerURL, err := url.Parse(config.MQTTAddr)
	if err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "invalid mqtt addr", errors.Details{"was": config.MQTTAddr})
	}
	if config.ClientID == "" {
		config.ClientID = DefaultClientID
	}
	p := &basePortal{
		logger:     logger,
		config:     config,
		brokerURL:  brokerURL,
		mqttRouter: paho.NewStandardRouter(),
	}
	p.gateway = newPortalGateway(logger.Named("gateway"), &portalGatewayMQTTBridge{
		logger:        logger,
		kiosk:         p,
		inboundRouter: p.mqttRouter,
	})
	return p, nil
}

// Open the base portal and keep the connection to the MQTT server until the
// given context.Context is done.
func (p *basePortal) Open(ctx context.Context) error {
	// Establish MQTT connection.
	conn, err := autopaho.NewConnection(ctx, p.genClientConfig(ctx))
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "create mqtt server connection failed", nil)
	}
	p.connMutex.Lock()
	p.conn = conn
	p.connMutex.Unlock()
	// Wait until we are done.
	<-ctx.Done()
	// Shutdown MQTT connection.
	disconnectTimeout, cancelDisconnectTimeout := context.WithTimeout(context.Background(), 3*time.Second)
	err = conn.Disconnect(disconnectTimeout)
	cancelDisconnectTimeout()
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "disconnect from mqtt server failed", nil)
	}
	return nil
}

// genClientConfig generates the autopaho.ClientConfig that is ready to launch
// and will use the router of the base portal.
func (p *basePortal) genClientConfig(lifetime context.Context) autopaho.ClientConfig {
	return autopaho.ClientConfig{
		BrokerUrls: []*url.URL{p.brokerURL},
		KeepAlive:  mqttKeepAlive,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt server connection established")
			p.connMutex.Lock()
			p.conn = cm
			p.connMutex.Unlock()
			p.gateway.resubscribeAll(lifetime)
		},
		OnConnectError: func(err error) {
			errors.Log(p.logger, errors.Error{
				Code:    errors.ErrCommunication,
				Err:     err,
				Message: "mqtt server connection failed",
			})
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.config.ClientID,
			Router:   p.mqttRouter,
			OnServerDisconnect: func(disconnect *paho.Disconnect) {
				reason := fmt.Sprintf("%d", disconnect.ReasonCode)
				if disconnect.Properties != nil {
					reason = disconnect.Properties.ReasonString
				}
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Message: fmt.Sprintf("mqtt server requested disconnect: %s", reason),
				})
			},
			OnClientError: func(err error) {
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Err:     err,
					Message: "mqtt server connection client error",
				})
			},
		},
	}
}

func (p *basePortal) connection() *autopaho.ConnectionManager {
	p.connMutex.RLock()
	defer p.connMutex.RUnlock()
	return p.conn
}

// Subscribe at the broker.
func (p *basePortal) Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error) {
	conn := p.connection()
	if conn == nil {
		return nil, errNotConnected
	}
	return conn.Subscribe(ctx, s)
}

// Unsubscribe at the broker.
func (p *basePortal) Unsubscribe(ctx context.Context, u *paho.Unsubscribe) (*paho.Unsuback, error) {
	conn := p.connection()
	if conn == nil {
		return nil, errNotConnected
	}
	return conn.Unsubscribe(ctx, u)
}

// Publish to the broker.
func (p *basePortal) Publish(ctx context.Context, publish *paho.Publish) (*paho.PublishResponse, error) {
	conn := p.connection()
	if conn == nil {
		return nil, errNotConnected
	}
	return conn.Publish(ctx, publish)
}

// NewPortal creates a new Portal that can be used to subscribe to topics and
// events.
func (p *basePortal) NewPortal(name string, fields ...zap.Field) Portal {
	return &portal{
		logger:    p.logger.Named(name).With(fields...),
		gateway:   p.gateway,
		publisher: p,
	}
}

// Subscribe to the given Portal for the Topic. The returned Newsletter contains
// an already unmarshalled payload. Messages that fail to unmarshal, are
// dropped. However, the error is logged to Portal.Logger.
func Subscribe[payloadT any](ctx context.Context, portal Portal, topic Topic) *Newsletter[payloadT] {
	rawSub := portal.Subscribe(ctx, topic)
	receiveParsed := make(chan event.Event[payloadT])
	go func() {
		defer close(receiveParsed)
		for e := range rawSub.Receive {
			// Parse payload.
			var payload payloadT
			err := json.Unmarshal(e.Publish.Payload, &payload)
			if err != nil {
				errors.Log(portal.Logger(), errors.Error{
					Code:    errors.ErrBadRequest,
					Kind:    errors.KindDecodeJSON,
					Err:     err,
					Message: "parse payload failed",
					Details: errors.Details{
						"topic":   e.Publish.Topic,
						"payload": string(e.Publish.Payload),
					},
				})
				continue
			}
			// Forward.
			select {
			case <-ctx.Done():
				return
			case receiveParsed <- event.Event[payloadT]{
				Publish: e.Publish,
				Payload: payload,
			}:
			}
		}
	}()
	return &Newsletter[payloadT]{
		unregisterFn: rawSub.unregisterFn,
		Receive:      receiveParsed,
	}
}

// portal provides a higher-level API for Base that makes it easier to conduct
// tests, etc.
type portal struct {
	logger *zap.Logger
	// gateway is used for subscribing to MQTT topics via Subscribe.
	gateway *portalGateway
	// publisher is used for publishing MQTT messages via Publish.
	publisher publisher
}

// Subscribe for the given Topic using the portal's gateway.
func (p *portal) Subscribe(ctx context.Context, topic Topic) *Newsletter[any] {
	subLifetime, cancelSub := context.WithCancel(ctx)
	receive := p.gateway.subscribe(subLifetime, topic)
	return &Newsletter[any]{
		unregisterFn: cancelSub,
		Receive:      receive,
	}
}

// Publish the given payload to the Topic.
func (p *portal) Publish(ctx context.Context, topic Topic, payload interface{}) {
	// Marshal payload.
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		errors.Log(p.logger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "marshal payload for publishing",
			Details: errors.Details{"topic": topic},
		})
		return
	}
	// Publish.
	_, err = p.publisher.Publish(ctx, &paho.Publish{
		QoS:     mqttQOS,
		Topic:   string(topic),
		Payload: payloadRaw,
	})
	if err != nil {
		errors.Log(p.logger, errors.FromErr("publish message failed", errors.ErrCommunication, err, errors.Details{
			"topic":   topic,
			"payload": string(payloadRaw),
		}))
		return
	}
}

// Logger returns the portal's logger.
func (p *portal) Logger() *zap.Logger {
	return p.logger
}
