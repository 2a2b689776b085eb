package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/config"
)

// unreachableConfig points at a port nothing listens on, so connection
// attempts fail fast with "connection refused".
func unreachableConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1,
			ClientID: "fireplace-test",
		},
		QoS: 0,
		Reconnect: config.MQTTReconnectConfig{
			Delay: 1,
		},
		CommandQueue: 4,
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := unreachableConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "wb", Password: "secret"}

	opts := buildClientOptions(cfg, &Will{
		Topic:    "/devices/kamin/controls/status",
		Payload:  "offline",
		Retained: true,
	})

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1", opts.Servers)
	}
	if opts.ClientID != "fireplace-test" {
		t.Errorf("ClientID = %q, want fireplace-test", opts.ClientID)
	}
	if opts.Username != "wb" || opts.Password != "secret" {
		t.Errorf("credentials not applied")
	}
	if opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false (client runs its own loop)")
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if !opts.WillEnabled || opts.WillTopic != "/devices/kamin/controls/status" || string(opts.WillPayload) != "offline" || !opts.WillRetained {
		t.Errorf("will not configured: enabled=%v topic=%q payload=%q retained=%v",
			opts.WillEnabled, opts.WillTopic, opts.WillPayload, opts.WillRetained)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := unreachableConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg, nil)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config missing or below minimum version")
	}
	if opts.WillEnabled {
		t.Error("WillEnabled = true with nil will")
	}
}

func TestClientID_Generated(t *testing.T) {
	a := clientID("")
	b := clientID("")
	if !strings.HasPrefix(a, clientIDPrefix) {
		t.Errorf("clientID() = %q, want prefix %q", a, clientIDPrefix)
	}
	if a == b {
		t.Errorf("generated client IDs collide: %q", a)
	}
	if got := clientID("fixed"); got != "fixed" {
		t.Errorf("clientID(fixed) = %q", got)
	}
}

func TestConnect_RetriesUntilContextDone(t *testing.T) {
	client := NewClient(unreachableConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := client.Connect(ctx)
	if err == nil {
		t.Fatal("Connect() expected error for unreachable broker")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want DeadlineExceeded", err)
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want wrapped ErrConnectionFailed", err)
	}
	// One delay (1s) must have elapsed before giving up.
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("Connect() returned after %v, want at least one retry delay", elapsed)
	}
}

// attemptLogger records when each reconnection attempt starts.
type attemptLogger struct {
	mu       sync.Mutex
	attempts []time.Time
}

func (l *attemptLogger) Info(msg string, _ ...any) {
	if msg != "attempting MQTT reconnection" {
		return
	}
	l.mu.Lock()
	l.attempts = append(l.attempts, time.Now())
	l.mu.Unlock()
}

func (l *attemptLogger) Warn(string, ...any)  {}
func (l *attemptLogger) Error(string, ...any) {}

func (l *attemptLogger) times() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Time(nil), l.attempts...)
}

func TestHandleDisconnect_RetriesOnFixedDelayUntilClose(t *testing.T) {
	client := NewClient(unreachableConfig(), nil)
	client.reconnectDelay = 50 * time.Millisecond
	logger := &attemptLogger{}
	client.SetLogger(logger)
	client.ctx, client.cancel = context.WithCancel(context.Background())

	var lost, connects atomic.Int32
	client.SetOnDisconnect(func(error) { lost.Add(1) })
	client.SetOnConnect(func() { connects.Add(1) })

	start := time.Now()
	client.handleDisconnect(errors.New("connection reset by peer"))
	// A second loss while the loop runs must not start another one.
	client.handleDisconnect(errors.New("connection reset by peer"))

	deadline := time.Now().Add(3 * time.Second)
	for len(logger.times()) < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	attempts := logger.times()
	if len(attempts) < 4 {
		t.Fatalf("got %d reconnection attempts, want at least 4", len(attempts))
	}
	if attempts[0].Sub(start) < client.reconnectDelay {
		t.Errorf("first attempt after %v, want at least %v", attempts[0].Sub(start), client.reconnectDelay)
	}
	for i := 1; i < len(attempts); i++ {
		if gap := attempts[i].Sub(attempts[i-1]); gap < client.reconnectDelay {
			t.Errorf("attempt %d came %v after the previous one, want at least %v", i+1, gap, client.reconnectDelay)
		}
	}
	if !client.reconnecting.Load() {
		t.Error("reconnecting = false while the loop is running")
	}
	if lost.Load() != 2 {
		t.Errorf("onDisconnect called %d times, want 2", lost.Load())
	}

	if err := client.Close(nil); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.reconnecting.Load() {
		t.Error("reconnecting still set after Close")
	}

	stopped := len(logger.times())
	time.Sleep(3 * client.reconnectDelay)
	if n := len(logger.times()); n != stopped {
		t.Errorf("%d attempts after Close, want none", n-stopped)
	}
	if connects.Load() != 0 || client.Stats().Reconnects != 0 {
		t.Errorf("unexpected success: connects=%d reconnects=%d", connects.Load(), client.Stats().Reconnects)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true for unreachable broker")
	}
}

func TestHandleDisconnect_AfterCloseDoesNotReconnect(t *testing.T) {
	client := NewClient(unreachableConfig(), nil)
	client.reconnectDelay = 10 * time.Millisecond
	if err := client.Close(nil); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	client.handleDisconnect(errors.New("connection reset by peer"))
	if client.reconnecting.Load() {
		t.Error("reconnect loop started after Close")
	}
}

func TestConnect_AfterClose(t *testing.T) {
	client := NewClient(unreachableConfig(), nil)
	if err := client.Close(nil); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after Close error = %v, want ErrClosed", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(nil); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	client := NewClient(unreachableConfig(), nil)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "a/b", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 0, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_TrackedWhileDisconnected(t *testing.T) {
	client := NewClient(unreachableConfig(), nil)
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("/devices/kamin/controls/power/on", 0, handler); err != nil {
		t.Fatalf("Subscribe() while disconnected error = %v, want nil (deferred)", err)
	}
	if !client.HasSubscription("/devices/kamin/controls/power/on") {
		t.Error("subscription not tracked")
	}
	if client.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := NewClient(unreachableConfig(), nil)
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := client.Subscribe("a/b", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := client.Subscribe("a/b", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("invalid subscriptions were tracked")
	}
}

func TestHealthCheck(t *testing.T) {
	client := NewClient(unreachableConfig(), nil)

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() with cancelled ctx error = %v, want Canceled", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrConnectionFailed) || !IsRetryable(ErrNotConnected) {
		t.Error("session errors must be retryable")
	}
	if IsRetryable(ErrInvalidTopic) {
		t.Error("ErrInvalidTopic must not be retryable")
	}
}
