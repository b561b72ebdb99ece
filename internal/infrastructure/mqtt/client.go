package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/stagecraft-systems/motion-core/internal/infrastructure/config"
)

// Client is the broker connection used for outbound telemetry. It wraps
// paho.mqtt.golang and adds subscription tracking so that topic handlers
// survive a reconnect, plus an online/offline announcement on the system
// status topic (backed by an LWT for the crash case).
//
// All methods are safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	mu        sync.Mutex
	connected bool
	subs      map[string]subscription
	onUp      func()
	onDown    func(err error)
	log       Logger
}

// Logger is the minimal logging surface the client needs. logging.Logger
// and *slog.Logger both satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives inbound messages. Paho invokes handlers on its
// own goroutines; a handler that blocks stalls delivery for its topic.
// Returned errors are logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Connect dials the broker described by cfg and blocks until the session
// is up or the connect timeout expires. The returned client reconnects on
// its own; callers only need Close at shutdown.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]subscription),
	}

	opts := buildOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDown(err) })

	c.paho = pahomqtt.NewClient(opts)
	if err := waitToken(c.paho.Connect(), connectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The on-connect handler fires asynchronously, so mark the session up
	// here as well; otherwise IsConnected can report false right after a
	// successful Connect.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return c, nil
}

// handleUp runs on every (re)connect: restore tracked subscriptions,
// announce presence, then hand control to the caller's callback.
func (c *Client) handleUp() {
	c.mu.Lock()
	c.connected = true
	tracked := make([]subscription, 0, len(c.subs))
	for _, s := range c.subs {
		tracked = append(tracked, s)
	}
	cb := c.onUp
	c.mu.Unlock()

	for _, s := range tracked {
		// Failures here are retried on the next reconnect cycle.
		c.paho.Subscribe(s.topic, s.qos, c.dispatch(s.handler))
	}

	c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, statusPayload("online", c.cfg.Broker.ClientID, ""))

	if cb != nil {
		cb()
	}
}

func (c *Client) handleDown(err error) {
	c.mu.Lock()
	c.connected = false
	cb := c.onDown
	c.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// Close announces a graceful shutdown on the status topic (so watchers can
// tell it apart from the LWT crash message) and disconnects. Safe to call
// on a client that never connected.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		tok := c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			statusPayload("offline", c.cfg.Broker.ClientID, "graceful_shutdown"))
		tok.WaitTimeout(ackTimeout)
	}

	c.paho.Disconnect(disconnectQuiesceMs)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	return nil
}

// HealthCheck reports whether the broker session is currently up.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	up := c.connected
	c.mu.Unlock()
	return up && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect registers a callback invoked after every successful connect,
// including reconnects. Pass nil to clear.
func (c *Client) SetOnConnect(cb func()) {
	c.mu.Lock()
	c.onUp = cb
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback invoked when the session drops.
func (c *Client) SetOnDisconnect(cb func(err error)) {
	c.mu.Lock()
	c.onDown = cb
	c.mu.Unlock()
}

// SetLogger wires a logger for handler errors and recovered panics.
// Without one those are dropped silently.
func (c *Client) SetLogger(l Logger) {
	c.mu.Lock()
	c.log = l
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log
}

// dispatch adapts a MessageHandler to paho's callback shape, containing
// panics so a bad handler cannot take down the paho router goroutine.
func (c *Client) dispatch(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.getLogger(); l != nil {
					l.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := h(msg.Topic(), msg.Payload()); err != nil {
			if l := c.getLogger(); l != nil {
				l.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

// waitToken blocks on a paho token and folds the timeout and error cases
// into a single wrapped sentinel.
func waitToken(tok pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
