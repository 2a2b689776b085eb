package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/fireplace-bridge/internal/fireplace"
	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/config"
	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/mqtt"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu         sync.Mutex
	published  []mockPublish
	events     []string
	connected  bool
	handlers   map[string]mqtt.MessageHandler
	order      []string
	onConnect  func()
	publishErr error

	// subscribeErr is returned after the handler is tracked, like
	// mqtt.Client does when the broker rejects or times out a SUBSCRIBE.
	subscribeErr error
}

type mockPublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  string(payload),
		QoS:      qos,
		Retained: retained,
	})
	m.events = append(m.events, "pub "+topic)
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[topic]; !ok {
		m.order = append(m.order, topic)
	}
	m.handlers[topic] = handler
	m.events = append(m.events, "sub "+topic)
	return m.subscribeErr
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetOnConnect(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = callback
}

// Reconnect simulates a new broker session the way mqtt.Client handles
// one: the on-connect callback first, then subscriptions are restored.
func (m *MockMQTTClient) Reconnect() {
	m.mu.Lock()
	m.connected = true
	callback := m.onConnect
	m.mu.Unlock()

	if callback != nil {
		callback()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, topic := range m.order {
		m.events = append(m.events, "sub "+topic)
	}
}

// SimulateMessage simulates receiving an MQTT message on a topic.
func (m *MockMQTTClient) SimulateMessage(topic, payload string) {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		_ = handler(topic, []byte(payload))
	}
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedTo returns payloads published to topic, in order.
func (m *MockMQTTClient) PublishedTo(topic string) []string {
	var out []string
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

// Last returns the most recent payload published to topic.
func (m *MockMQTTClient) Last(topic string) (string, bool) {
	payloads := m.PublishedTo(topic)
	if len(payloads) == 0 {
		return "", false
	}
	return payloads[len(payloads)-1], true
}

func (m *MockMQTTClient) GetEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
	m.events = nil
}

// mockDevice implements Device for testing.
type mockDevice struct {
	mu        sync.Mutex
	body      string
	statusErr error
	cmdErr    error
	calls     []string

	// delay makes each call take that long, failing early if ctx ends
	// first, like an HTTP request would.
	delay time.Duration
	// fetching, when set, receives once per FetchStatus as it starts.
	fetching chan struct{}
}

func newMockDevice(body string) *mockDevice {
	return &mockDevice{body: body}
}

func (d *mockDevice) FetchStatus(ctx context.Context) (fireplace.Status, error) {
	if d.fetching != nil {
		d.fetching <- struct{}{}
	}
	if err := d.wait(ctx); err != nil {
		return fireplace.Status{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "status")
	if d.statusErr != nil {
		return fireplace.Status{}, d.statusErr
	}
	return fireplace.DecodeStatus([]byte(d.body))
}

func (d *mockDevice) SetPower(ctx context.Context, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return d.command(ctx, fmt.Sprintf("POWER=%d", v))
}

func (d *mockDevice) SetFireMode(ctx context.Context, mode int) error {
	return d.command(ctx, fmt.Sprintf("select_rez=%d", mode))
}

func (d *mockDevice) SetAudioMode(ctx context.Context, mode int) error {
	return d.command(ctx, fmt.Sprintf("AUDIO_rej=%d", mode))
}

func (d *mockDevice) wait(ctx context.Context) error {
	if d.delay == 0 {
		return nil
	}
	select {
	case <-time.After(d.delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", fireplace.ErrUnreachable, ctx.Err())
	}
}

func (d *mockDevice) command(ctx context.Context, call string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	return d.cmdErr
}

func (d *mockDevice) set(body string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.body = body
	d.statusErr = err
}

func (d *mockDevice) getCalls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// commandCalls returns calls other than status fetches.
func (d *mockDevice) commandCalls() []string {
	var out []string
	for _, c := range d.getCalls() {
		if c != "status" {
			out = append(out, c)
		}
	}
	return out
}

func testDeviceConfig() config.DeviceConfig {
	return config.DeviceConfig{
		ID:           "fireplace",
		TitleEN:      "Fireplace",
		TitleRU:      "Камин",
		PollInterval: 1,
		FireMode:     config.RangeConfig{Min: 0, Max: 3},
		AudioMode:    config.RangeConfig{Min: 0, Max: 2},
	}
}

const onlineBody = `{"POWER":1,"select_rez":2,"AUDIO_rej":0,"zapravka":1}`
