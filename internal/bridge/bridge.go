package bridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/config"
	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/mqtt"
)

// Options holds configuration for creating a bridge.
type Options struct {
	// Device is the fireplace HTTP client.
	Device Device

	// MQTTClient is the broker session.
	MQTTClient MQTTClient

	// DeviceConfig supplies the device ID, titles, mode ranges and poll interval.
	DeviceConfig config.DeviceConfig

	// QoS for publishes and subscriptions.
	QoS byte

	// QueueSize is the capacity of the inbound command channel.
	QueueSize int

	// Debug publishes raw status JSON to the log topic on every poll.
	Debug bool

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge runs the gateway, router and reconciler for one device.
type Bridge struct {
	model      *Model
	mqtt       MQTTClient
	gateway    *Gateway
	router     *Router
	reconciler *Reconciler
	logger     Logger

	running atomic.Bool
}

// Metrics is a point-in-time view of the bridge for the status API.
type Metrics struct {
	DeviceID      string          `json:"device_id"`
	MQTTConnected bool            `json:"mqtt_connected"`
	Reconnects    uint64          `json:"mqtt_reconnects"`
	DeviceOnline  bool            `json:"device_online"`
	Poller        ReconcilerStats `json:"poller"`
	Commands      RouterStats     `json:"commands"`
	Gateway       GatewayStats    `json:"gateway"`
}

// New creates a bridge. Register HandleConnect with the MQTT client before
// connecting so the first session publishes the startup snapshot.
func New(opts Options) (*Bridge, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.DeviceConfig.ID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	model := NewModel(opts.DeviceConfig)

	gateway, err := NewGateway(GatewayOptions{
		Client: opts.MQTTClient,
		Model:  model,
		QoS:    opts.QoS,
		Debug:  opts.Debug,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %w", err)
	}

	reconciler, err := NewReconciler(ReconcilerOptions{
		Device:    opts.Device,
		Publisher: gateway,
		Model:     model,
		Interval:  opts.DeviceConfig.GetPollInterval(),
		Debug:     opts.Debug,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating reconciler: %w", err)
	}

	router, err := NewRouter(RouterOptions{
		Device:    opts.Device,
		Publisher: gateway,
		Model:     model,
		QueueSize: opts.QueueSize,
		State:     reconciler.State,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	gateway.OnMessage(router.Enqueue)

	return &Bridge{
		model:      model,
		mqtt:       opts.MQTTClient,
		gateway:    gateway,
		router:     router,
		reconciler: reconciler,
		logger:     opts.Logger,
	}, nil
}

// HandleConnect is the MQTT on-connect callback. See Gateway.HandleConnect.
func (b *Bridge) HandleConnect() {
	b.gateway.HandleConnect()
}

// Model returns the bridge's control table.
func (b *Bridge) Model() *Model {
	return b.model
}

// Run subscribes to the command topics and runs the router and poller
// lanes until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return fmt.Errorf("bridge already running")
	}
	defer b.running.Store(false)

	if err := b.gateway.Subscribe(b.model.CommandTopics()); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	b.logInfo("bridge started",
		"device_id", b.model.DeviceID,
		"poll_interval", b.reconciler.interval.String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.router.Run(gctx) })
	g.Go(func() error { return b.reconciler.Run(gctx) })
	err := g.Wait()

	b.logInfo("bridge stopped")
	return err
}

// State returns the last-known device state.
func (b *Bridge) State() DeviceState {
	return b.reconciler.State()
}

// IsConnected reports the broker session state.
func (b *Bridge) IsConnected() bool {
	return b.gateway.IsConnected()
}

// Metrics returns current bridge metrics for the status API.
func (b *Bridge) Metrics() Metrics {
	m := Metrics{
		DeviceID:      b.model.DeviceID,
		MQTTConnected: b.gateway.IsConnected(),
		DeviceOnline:  b.reconciler.State().Online,
		Poller:        b.reconciler.Stats(),
		Commands:      b.router.Stats(),
		Gateway:       b.gateway.Stats(),
	}
	if s, ok := b.mqtt.(interface{ Stats() mqtt.Stats }); ok {
		m.Reconnects = s.Stats().Reconnects
	}
	return m
}

func (b *Bridge) logInfo(msg string, kv ...any) {
	if b.logger != nil {
		b.logger.Info(msg, kv...)
	}
}
