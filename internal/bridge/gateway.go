package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/mqtt"
)

// MQTTClient is the broker session the gateway publishes through.
// *mqtt.Client satisfies it; tests use a mock.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic. Subscriptions survive
	// reconnects.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger is the structured logger used across the bridge.
// *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// GatewayOptions holds configuration for creating a gateway.
type GatewayOptions struct {
	Client MQTTClient
	Model  *Model

	// QoS for every publish and subscription.
	QoS byte

	// Debug selects the initial log payload ("" instead of the
	// debug-disabled marker).
	Debug bool

	Logger Logger
}

// Gateway owns everything the bridge sends to and receives from the broker.
//
// Thread Safety: all methods are safe for concurrent use. Publishes go
// straight to the MQTT client, which serialises them itself.
type Gateway struct {
	client MQTTClient
	model  *Model
	qos    byte
	debug  bool
	logger Logger

	handler   func(CommandRequest)
	handlerMu sync.RWMutex

	snapshotDone    atomic.Bool
	lastStatus      atomic.Pointer[string]
	sessions        atomic.Uint64
	publishFailures atomic.Uint64
}

// GatewayStats holds gateway counters.
type GatewayStats struct {
	Sessions        uint64 `json:"sessions"`
	PublishFailures uint64 `json:"publish_failures"`
}

// NewGateway creates a gateway. Register HandleConnect as the MQTT client's
// on-connect callback before connecting.
func NewGateway(opts GatewayOptions) (*Gateway, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("model is required")
	}

	g := &Gateway{
		client: opts.Client,
		model:  opts.Model,
		qos:    opts.QoS,
		debug:  opts.Debug,
		logger: opts.Logger,
	}
	offline := StatusOffline
	g.lastStatus.Store(&offline)
	return g, nil
}

// OfflineWill returns the Last Will for the status topic: a retained
// "offline" the broker publishes if the session dies uncleanly.
func OfflineWill(m *Model, qos byte) *mqtt.Will {
	return &mqtt.Will{
		Topic:    m.State(ControlStatus),
		Payload:  StatusOffline,
		QoS:      qos,
		Retained: true,
	}
}

// HandleConnect runs on every new broker session, before subscriptions are
// restored. It republishes all meta topics. The first session also gets the
// initial state snapshot; later sessions get the last known status back,
// since the broker may have replaced it with the Last Will.
func (g *Gateway) HandleConnect() {
	n := g.sessions.Add(1)

	g.publishAllMeta()

	if g.snapshotDone.CompareAndSwap(false, true) {
		g.publishInitialSnapshot()
	} else {
		g.PublishState(g.model.State(ControlStatus), *g.lastStatus.Load(), true)
	}

	g.logInfo("broker session ready", "session", n, "device_id", g.model.DeviceID)
}

func (g *Gateway) publishAllMeta() {
	g.PublishMeta(g.model.DeviceMeta(), g.model.DeviceMetaJSON())
	for _, c := range g.model.Controls() {
		g.PublishMeta(g.model.Meta(c.Name), c.MetaJSON())
	}
	// SprutHub discovers the power switch through its type topic.
	g.PublishMeta(g.model.MetaType(ControlPower), []byte(TypeSwitch))
}

// publishInitialSnapshot gives every control a value before the first poll
// and clears error topics left over from a previous run.
func (g *Gateway) publishInitialSnapshot() {
	logValue := LogDebugDisabled
	if g.debug {
		logValue = ""
	}

	fire, _ := g.model.Control(ControlFireMode)
	audio, _ := g.model.Control(ControlAudioMode)

	initial := []struct {
		control string
		value   string
	}{
		{ControlPower, "0"},
		{ControlFireMode, strconv.Itoa(fire.Range.Min)},
		{ControlAudioMode, strconv.Itoa(audio.Range.Min)},
		{ControlSettings, "0"},
		{ControlPowerStatus, "0"},
		{ControlFillStatus, "0"},
		{ControlLog, logValue},
	}
	for _, s := range initial {
		g.PublishState(g.model.State(s.control), s.value, false)
	}
	g.PublishStatus(StatusOffline)

	for _, c := range g.model.ErrorControls() {
		g.PublishError(g.model.Error(c.Name), ErrorClear)
	}
}

// PublishState publishes a control value.
func (g *Gateway) PublishState(topic, value string, retained bool) {
	g.publish(topic, []byte(value), retained)
}

// PublishMeta publishes a meta document. Meta is always retained.
func (g *Gateway) PublishMeta(topic string, payload []byte) {
	g.publish(topic, payload, true)
}

// PublishError publishes an error marker (ErrorMarker) or clears it (ErrorClear).
func (g *Gateway) PublishError(topic, value string) {
	g.publish(topic, []byte(value), false)
}

// PublishStatus publishes the retained availability status and remembers it
// for the next session.
func (g *Gateway) PublishStatus(status string) {
	g.lastStatus.Store(&status)
	g.PublishState(g.model.State(ControlStatus), status, true)
}

func (g *Gateway) publish(topic string, payload []byte, retained bool) {
	if err := g.client.Publish(topic, payload, g.qos, retained); err != nil {
		g.publishFailures.Add(1)
		if mqtt.IsRetryable(err) {
			g.logDebug("publish skipped, broker not connected", "topic", topic)
			return
		}
		g.logWarn("publish failed", "topic", topic, "error", err)
	}
}

// Subscribe registers the gateway's message handler on each topic.
//
// A broker-side failure is logged and skipped: the client keeps the
// subscription and applies it again on the next session. Only invalid
// arguments are returned.
func (g *Gateway) Subscribe(topics []string) error {
	for _, topic := range topics {
		err := g.client.Subscribe(topic, g.qos, g.handleMessage)
		switch {
		case err == nil:
			g.logDebug("subscribed", "topic", topic)
		case errors.Is(err, mqtt.ErrSubscribeFailed) || mqtt.IsRetryable(err):
			g.logWarn("subscribe failed, retrying on next session", "topic", topic, "error", err)
		default:
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// OnMessage sets the single callback for inbound commands. It runs on the
// MQTT delivery goroutine and must not block.
func (g *Gateway) OnMessage(handler func(CommandRequest)) {
	g.handlerMu.Lock()
	g.handler = handler
	g.handlerMu.Unlock()
}

func (g *Gateway) handleMessage(topic string, payload []byte) error {
	c, ok := g.model.ControlByCommandTopic(topic)
	if !ok {
		g.logDebug("ignoring message on unknown topic", "topic", topic)
		return nil
	}

	g.handlerMu.RLock()
	handler := g.handler
	g.handlerMu.RUnlock()
	if handler == nil {
		return nil
	}

	handler(CommandRequest{
		Control:    c.Name,
		Topic:      topic,
		RawPayload: string(payload),
		ReceivedAt: time.Now(),
	})
	return nil
}

// IsConnected reports the broker session state.
func (g *Gateway) IsConnected() bool {
	return g.client.IsConnected()
}

// Stats returns gateway counters.
func (g *Gateway) Stats() GatewayStats {
	return GatewayStats{
		Sessions:        g.sessions.Load(),
		PublishFailures: g.publishFailures.Load(),
	}
}

func (g *Gateway) logDebug(msg string, kv ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, kv...)
	}
}

func (g *Gateway) logInfo(msg string, kv ...any) {
	if g.logger != nil {
		g.logger.Info(msg, kv...)
	}
}

func (g *Gateway) logWarn(msg string, kv ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, kv...)
	}
}
