package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for one connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultReconnectDelay is used when the config carries no delay.
	defaultReconnectDelay = 5 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// clientIDPrefix is used for generated client IDs.
	clientIDPrefix = "fireplace-bridge-"
)

// Will is the Last Will and Testament published by the broker when the
// session drops without a clean disconnect.
type Will struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// buildClientOptions creates paho MQTT options from the bridge config.
//
// paho's own reconnect logic is disabled: it backs off exponentially, while
// the bridge retries on a fixed delay (see Client.reconnectLoop).
func buildClientOptions(cfg config.MQTTConfig, will *Will) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(clientID(cfg.Broker.ClientID))

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// No persistent session: subscriptions are restored by the client itself.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	if will != nil && will.Topic != "" {
		opts.SetWill(will.Topic, will.Payload, will.QoS, will.Retained)
	}

	return opts
}

// clientID returns the configured ID, or a generated one when empty.
// Brokers drop the older session on ID collision, so generated IDs are unique.
func clientID(configured string) string {
	if configured != "" {
		return configured
	}
	return clientIDPrefix + uuid.NewString()[:8]
}
