// fireplacebridge bridges a fireplace controller's HTTP API to a Wiren Board
// style MQTT topic tree.
//
// It polls the controller for status, publishes it under
// /devices/{id}/controls/..., and turns writes to .../on topics into HTTP
// commands. One process serves one device.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/fireplace-bridge/internal/api"
	"github.com/nerrad567/fireplace-bridge/internal/bridge"
	"github.com/nerrad567/fireplace-bridge/internal/fireplace"
	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/config"
	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting fireplace bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"device", cfg.Device.String(),
		"debug", cfg.Debug,
	)

	device, err := fireplace.NewClient(cfg.Device)
	if err != nil {
		return fmt.Errorf("creating device client: %w", err)
	}

	qos := byte(cfg.MQTT.QoS)
	will := bridge.OfflineWill(bridge.NewModel(cfg.Device), qos)
	mqttClient := mqtt.NewClient(cfg.MQTT, will)
	mqttClient.SetLogger(log)

	b, err := bridge.New(bridge.Options{
		Device:       device,
		MQTTClient:   mqttClient,
		DeviceConfig: cfg.Device,
		QoS:          mqttClient.QoS(),
		QueueSize:    cfg.MQTT.CommandQueue,
		Debug:        cfg.Debug,
		Logger:       log.With("component", "bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	mqttClient.SetOnConnect(b.HandleConnect)
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Retries on a fixed delay until the broker answers or we are told to stop.
	if err := mqttClient.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(will); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	// A session lost right after connect is picked up by the reconnect loop.
	if err := mqttClient.HealthCheck(ctx); err != nil {
		log.Warn("MQTT session not healthy after connect", "error", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"device_url", device.BaseURL(),
	)

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Bridge:  b,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running bridge: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FIREPLACE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FIREPLACE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
