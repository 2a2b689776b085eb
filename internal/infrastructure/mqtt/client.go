package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with the bridge's session policy.
//
// It provides connection management with fixed-delay retry, message
// publishing, and subscription handling.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client         pahomqtt.Client
	options        *pahomqtt.ClientOptions
	cfg            config.MQTTConfig
	reconnectDelay time.Duration

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex

	// Reconnection state. ctx is the lifetime passed to Connect.
	ctx          context.Context
	cancel       context.CancelFunc
	reconnecting atomic.Bool
	closed       atomic.Bool
	reconnects   atomic.Uint64
	wg           sync.WaitGroup
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's delivery goroutine in arrival order.
// They must not block for extended periods.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Stats holds session counters.
type Stats struct {
	Connected  bool
	Reconnects uint64
}

// NewClient creates an unconnected client. Register callbacks with
// SetOnConnect/SetOnDisconnect/SetLogger before calling Connect so the
// first session is observed too.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - will: Optional Last Will and Testament (nil for none)
func NewClient(cfg config.MQTTConfig, will *Will) *Client {
	c := &Client{
		cfg:            cfg,
		reconnectDelay: cfg.GetReconnectDelay(),
		subscriptions:  make(map[string]subscription),
	}
	if c.reconnectDelay <= 0 {
		c.reconnectDelay = defaultReconnectDelay
	}

	c.options = buildClientOptions(cfg, will)
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	c.client = pahomqtt.NewClient(c.options)

	return c
}

// Connect establishes the broker session, retrying every reconnect delay
// until it succeeds or ctx is cancelled. ctx also bounds every later
// reconnect loop, so it should live as long as the process.
//
// Returns:
//   - error: ctx.Err() wrapped with the last connection failure, or ErrClosed
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	for attempt := 1; ; attempt++ {
		err := c.connectOnce()
		if err == nil {
			return nil
		}

		c.logWarn("MQTT connection attempt failed",
			"attempt", attempt,
			"retry_in", c.reconnectDelay.String(),
			"error", err,
		)

		select {
		case <-c.ctx.Done():
			return fmt.Errorf("%w: %w", c.ctx.Err(), err)
		case <-time.After(c.reconnectDelay):
		}
	}
}

// connectOnce performs a single connection attempt and, on success, runs the
// on-connect sequence.
func (c *Client) connectOnce() error {
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.handleConnect()
	return nil
}

// handleConnect runs after every successful connection: the on-connect
// callback first, then subscription restore, so anything the callback
// publishes is on the broker before new commands can arrive.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}

	c.restoreSubscriptions()
}

// handleDisconnect is called by paho when the session is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}

	if c.closed.Load() {
		return
	}
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}

	c.wg.Add(1)
	go c.reconnectLoop()
}

// reconnectLoop retries on a fixed delay with no attempt limit. It exits on
// success, on Close, or when the Connect context is cancelled.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()
	defer c.reconnecting.Store(false)

	for attempt := 1; ; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}

		if c.closed.Load() {
			return
		}

		c.logInfo("attempting MQTT reconnection", "attempt", attempt)

		if err := c.connectOnce(); err != nil {
			c.logWarn("MQTT reconnection failed",
				"attempt", attempt,
				"retry_in", c.reconnectDelay.String(),
				"error", err,
			)
			continue
		}

		c.reconnects.Add(1)
		c.logInfo("MQTT reconnected", "attempts", attempt)
		return
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after (re)connect.
// A clean session drops server-side subscriptions, so this runs every time.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		if !token.WaitTimeout(defaultPublishTimeout) {
			c.logWarn("re-subscribe timed out", "topic", sub.topic)
			continue
		}
		if err := token.Error(); err != nil {
			c.logWarn("re-subscribe failed", "topic", sub.topic, "error", err)
		}
	}
}

// Close stops reconnection, optionally publishes a final retained message
// (typically the "offline" status) and disconnects.
//
// Returns:
//   - error: If the final publish fails (disconnect always proceeds)
func (c *Client) Close(final *Will) error {
	if c.client == nil {
		return nil
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	var publishErr error
	if final != nil && c.IsConnected() {
		token := c.client.Publish(final.Topic, final.QoS, final.Retained, final.Payload)
		if !token.WaitTimeout(defaultPublishTimeout) {
			publishErr = fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
		} else if err := token.Error(); err != nil {
			publishErr = fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
	}

	if c.client.IsConnected() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return publishErr
}

// HealthCheck reports whether the session is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// Stats returns session counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:  c.IsConnected(),
		Reconnects: c.reconnects.Load(),
	}
}

// QoS returns the configured default QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// SetOnConnect sets a callback invoked after every successful connection,
// before subscriptions are restored.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the session is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection and handler events.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logInfo(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logWarn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}

// IsRetryable reports whether err is a broker session failure that a later
// attempt may fix.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrNotConnected)
}
