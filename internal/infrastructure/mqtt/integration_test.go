//go:build integration

package mqtt

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/config"
)

// Integration tests for MQTT session behaviour.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			Delay: 1,
		},
		CommandQueue: 4,
	}
}

func connectIntegration(t *testing.T, clientID string) *Client {
	t.Helper()
	client := NewClient(integrationConfig(clientID), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close(nil) })
	return client
}

func TestIntegration_OnConnectRunsBeforeResubscribe(t *testing.T) {
	client := NewClient(integrationConfig("fireplace-it-order"), nil)

	var order []string
	var mu sync.Mutex
	client.SetOnConnect(func() {
		mu.Lock()
		order = append(order, "on_connect")
		mu.Unlock()
	})

	if err := client.Subscribe("fireplace-it/order", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close(nil)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 1 || order[0] != "on_connect" {
		t.Errorf("on-connect calls = %v, want exactly one", order)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
}

func TestIntegration_PublishSubscribeRoundtrip(t *testing.T) {
	sub := connectIntegration(t, "fireplace-it-sub")
	pub := connectIntegration(t, "fireplace-it-pub")

	var received atomic.Value
	done := make(chan struct{}, 1)
	err := sub.Subscribe("fireplace-it/roundtrip", 1, func(_ string, payload []byte) error {
		received.Store(string(payload))
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := pub.Publish("fireplace-it/roundtrip", []byte("1"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
		if received.Load() != "1" {
			t.Errorf("received %v, want 1", received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestIntegration_CloseWithFinalMessage(t *testing.T) {
	client := NewClient(integrationConfig("fireplace-it-final"), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := client.Close(&Will{Topic: "fireplace-it/status", Payload: "offline", QoS: 1, Retained: true})
	if err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
