package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the fireplace bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`

	// Debug publishes every raw status payload to the log topic and
	// forces debug-level logging.
	Debug bool `yaml:"debug"`
}

// DeviceConfig contains the fireplace controller's HTTP settings.
type DeviceConfig struct {
	// ID is the device identifier used in every MQTT topic (/devices/{id}/...).
	ID string `yaml:"id"`

	// BaseURL is the controller address. A bare host ("192.168.1.50") is
	// accepted and gets the http:// scheme.
	BaseURL string `yaml:"base_url"`

	// TitleEN and TitleRU are the device titles published in /devices/{id}/meta.
	TitleEN string `yaml:"title_en"`
	TitleRU string `yaml:"title_ru"`

	// Username and Password are passed through as HTTP basic auth when set.
	// WARNING: Never log Password. Use String() for safe logging.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// PollInterval is the status poll period (seconds).
	PollInterval int `yaml:"poll_interval"`

	// HTTPTimeout bounds every request to the controller (seconds).
	HTTPTimeout int `yaml:"http_timeout"`

	// CommandMethod is the HTTP method used for commands: GET or POST.
	CommandMethod string `yaml:"command_method"`

	// FireMode and AudioMode are the inclusive ranges accepted by the
	// controller. Firmware variants disagree on fire mode (1-4 vs 0-3).
	FireMode  RangeConfig `yaml:"fire_mode"`
	AudioMode RangeConfig `yaml:"audio_mode"`
}

// RangeConfig is an inclusive integer range.
type RangeConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Contains reports whether v lies within the range (inclusive).
func (r RangeConfig) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// String returns a string representation with the password masked.
func (d DeviceConfig) String() string {
	password := ""
	if d.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("DeviceConfig{ID:%q, BaseURL:%q, Username:%q, Password:%s}",
		d.ID, d.BaseURL, d.Username, password)
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// CommandQueue is the capacity of the inbound command channel between
	// the broker's delivery goroutine and the command router.
	CommandQueue int `yaml:"command_queue"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MarshalJSON implements json.Marshaler to redact the password.
func (a MQTTAuthConfig) MarshalJSON() ([]byte, error) {
	type redacted MQTTAuthConfig
	safe := redacted(a)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	// Delay is the fixed pause between connection attempts (seconds).
	// Attempts are unbounded; only shutdown stops them.
	Delay int `yaml:"delay"`
}

// APIConfig contains the optional read-only status API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Poll interval limits (seconds).
const (
	minPollInterval = 1
	maxPollInterval = 60
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FIREPLACE_SECTION_KEY
// For example: FIREPLACE_MQTT_HOST, FIREPLACE_DEVICE_BASE_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if cfg.Debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:            "fireplace",
			TitleEN:       "Fireplace",
			TitleRU:       "Камин",
			PollInterval:  5,
			HTTPTimeout:   5,
			CommandMethod: "GET",
			FireMode:      RangeConfig{Min: 1, Max: 4},
			AudioMode:     RangeConfig{Min: 0, Max: 2},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				Delay: 5,
			},
			CommandQueue: 16,
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8099,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FIREPLACE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Device
	if v := os.Getenv("FIREPLACE_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}
	if v := os.Getenv("FIREPLACE_DEVICE_BASE_URL"); v != "" {
		cfg.Device.BaseURL = v
	}
	if v := os.Getenv("FIREPLACE_DEVICE_PASSWORD"); v != "" {
		cfg.Device.Password = v
	}

	// MQTT
	if v := os.Getenv("FIREPLACE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FIREPLACE_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FIREPLACE_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("FIREPLACE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FIREPLACE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Logging
	if v := os.Getenv("FIREPLACE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FIREPLACE_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FIREPLACE_DEBUG: %w", err)
		}
		cfg.Debug = debug
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateDevice()...)
	errs = append(errs, c.validateMQTT()...)

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateDevice() []string {
	var errs []string
	d := c.Device

	switch {
	case d.ID == "":
		errs = append(errs, "device.id is required")
	case strings.ContainsAny(d.ID, "/+# "):
		errs = append(errs, "device.id must not contain '/', '+', '#' or spaces")
	}

	if d.BaseURL == "" {
		errs = append(errs, "device.base_url is required")
	} else if _, err := d.ParsedBaseURL(); err != nil {
		errs = append(errs, fmt.Sprintf("device.base_url is invalid: %v", err))
	}

	if d.PollInterval < minPollInterval || d.PollInterval > maxPollInterval {
		errs = append(errs, fmt.Sprintf("device.poll_interval must be between %d and %d seconds",
			minPollInterval, maxPollInterval))
	}
	if d.HTTPTimeout < 1 {
		errs = append(errs, "device.http_timeout must be at least 1 second")
	}

	switch strings.ToUpper(d.CommandMethod) {
	case "GET", "POST":
	default:
		errs = append(errs, "device.command_method must be GET or POST")
	}

	if d.FireMode.Min > d.FireMode.Max {
		errs = append(errs, "device.fire_mode.min must not exceed max")
	}
	if d.AudioMode.Min > d.AudioMode.Max {
		errs = append(errs, "device.audio_mode.min must not exceed max")
	}

	return errs
}

func (c *Config) validateMQTT() []string {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.Delay < 1 {
		errs = append(errs, "mqtt.reconnect.delay must be at least 1 second")
	}
	if c.MQTT.CommandQueue < 1 {
		errs = append(errs, "mqtt.command_queue must be at least 1")
	}

	return errs
}

// ParsedBaseURL returns the controller base URL, adding http:// to bare hosts.
func (d DeviceConfig) ParsedBaseURL() (*url.URL, error) {
	raw := strings.TrimRight(d.BaseURL, "/")
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

// GetPollInterval returns the device poll interval as a Duration.
func (d DeviceConfig) GetPollInterval() time.Duration {
	return time.Duration(d.PollInterval) * time.Second
}

// GetHTTPTimeout returns the per-request device timeout as a Duration.
func (d DeviceConfig) GetHTTPTimeout() time.Duration {
	return time.Duration(d.HTTPTimeout) * time.Second
}

// GetReconnectDelay returns the broker reconnect delay as a Duration.
func (m MQTTConfig) GetReconnectDelay() time.Duration {
	return time.Duration(m.Reconnect.Delay) * time.Second
}
