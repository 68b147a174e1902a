package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"mqtt-live-feed/internal/transport"
)

// Supported transport backends
const (
	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

type Config struct {
	Transport string        `json:"transport" yaml:"transport"` // mqtt or nats
	MQTT      MQTTConfig    `json:"mqtt" yaml:"mqtt"`
	NATS      NATSConfig    `json:"nats" yaml:"nats"`
	Feed      FeedConfig    `json:"feed" yaml:"feed"`
	Logging   LogConfig     `json:"logging" yaml:"logging"`
	Metrics   MetricsConfig `json:"metrics" yaml:"metrics"`
}

type TLSConfig struct {
	Enable   bool   `json:"enable" yaml:"enable"`
	CertFile string `json:"certFile" yaml:"certFile"`
	KeyFile  string `json:"keyFile" yaml:"keyFile"`
	CAFile   string `json:"caFile" yaml:"caFile"`
}

type MQTTConfig struct {
	Broker   string    `json:"broker" yaml:"broker"`
	ClientID string    `json:"clientId" yaml:"clientId"`
	Username string    `json:"username" yaml:"username"`
	Password string    `json:"password" yaml:"password"`
	TLS      TLSConfig `json:"tls" yaml:"tls"`
}

type NATSConfig struct {
	URL      string    `json:"url" yaml:"url"`
	Name     string    `json:"name" yaml:"name"`
	Username string    `json:"username" yaml:"username"`
	Password string    `json:"password" yaml:"password"`
	TLS      TLSConfig `json:"tls" yaml:"tls"`
}

// FeedConfig describes the subscription and how its history is kept
type FeedConfig struct {
	Topic             string `json:"topic" yaml:"topic"`
	QoS               byte   `json:"qos" yaml:"qos"`
	BufferSize        int    `json:"bufferSize" yaml:"bufferSize"`
	ReconnectDelay    string `json:"reconnectDelay" yaml:"reconnectDelay"`       // Duration string
	MaxReconnectDelay string `json:"maxReconnectDelay" yaml:"maxReconnectDelay"` // Duration string, empty = fixed delay
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`           // debug, info, warn, error
	OutputPath string `json:"outputPath" yaml:"outputPath"` // file path, "stdout" or "stderr"
	Encoding   string `json:"encoding" yaml:"encoding"`     // json or console
	MaxSize    int    `json:"maxSize" yaml:"maxSize"`       // megabytes before rotation
	MaxAge     int    `json:"maxAge" yaml:"maxAge"`         // days
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Address        string `json:"address" yaml:"address"`
	Path           string `json:"path" yaml:"path"`
	UpdateInterval string `json:"updateInterval" yaml:"updateInterval"` // Duration string
}

// Load reads and parses the configuration file. Files ending in .yaml or .yml
// are parsed as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	// Validate the configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Transport == "" {
		c.Transport = TransportMQTT
	}

	// Set defaults for the feed
	if c.Feed.Topic == "" {
		c.Feed.Topic = "vision/results"
	}
	if c.Feed.BufferSize <= 0 {
		c.Feed.BufferSize = 50
	}
	if c.Feed.ReconnectDelay == "" {
		c.Feed.ReconnectDelay = "5s"
	}

	// Set defaults for logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
	if c.Logging.MaxSize <= 0 {
		c.Logging.MaxSize = 100
	}

	// Set defaults for metrics
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == "" {
		c.Metrics.UpdateInterval = "15s"
	}
}

// Validate re-checks the configuration, typically after ApplyOverrides
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	switch cfg.Transport {
	case TransportMQTT:
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker address is required")
		}
		if err := validateTLS(cfg.MQTT.TLS); err != nil {
			return err
		}
	case TransportNATS:
		if cfg.NATS.URL == "" {
			return fmt.Errorf("nats url is required")
		}
		if err := validateTLS(cfg.NATS.TLS); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid transport: %s", cfg.Transport)
	}

	// Validate feed config
	validateTopic := transport.ValidateTopicFilter
	if cfg.Transport == TransportNATS {
		validateTopic = transport.ValidateSubjectFilter
	}
	if err := validateTopic(cfg.Feed.Topic); err != nil {
		return err
	}
	if err := transport.ValidateQoS(cfg.Feed.QoS); err != nil {
		return err
	}
	delay, err := time.ParseDuration(cfg.Feed.ReconnectDelay)
	if err != nil {
		return fmt.Errorf("invalid reconnect delay: %w", err)
	}
	if delay <= 0 {
		return fmt.Errorf("reconnect delay must be greater than 0")
	}
	if cfg.Feed.MaxReconnectDelay != "" {
		maxDelay, err := time.ParseDuration(cfg.Feed.MaxReconnectDelay)
		if err != nil {
			return fmt.Errorf("invalid max reconnect delay: %w", err)
		}
		if maxDelay < delay {
			return fmt.Errorf("max reconnect delay must not be less than reconnect delay")
		}
	}

	// Validate logging config
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	// Validate metrics config
	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	return nil
}

// validateTLS requires a complete key pair when a client certificate is given
func validateTLS(t TLSConfig) error {
	if !t.Enable {
		return nil
	}
	if (t.CertFile == "") != (t.KeyFile == "") {
		return fmt.Errorf("tls cert file and key file must be set together")
	}
	return nil
}

// ReconnectDelays returns the parsed reconnect delays. Load has already
// validated both values.
func (f FeedConfig) ReconnectDelays() (time.Duration, time.Duration) {
	delay, _ := time.ParseDuration(f.ReconnectDelay)
	var maxDelay time.Duration
	if f.MaxReconnectDelay != "" {
		maxDelay, _ = time.ParseDuration(f.MaxReconnectDelay)
	}
	return delay, maxDelay
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(broker, topic, clientID string, bufferSize int, metricsAddr, metricsPath string, metricsInterval time.Duration) {
	if broker != "" {
		switch c.Transport {
		case TransportNATS:
			c.NATS.URL = broker
		default:
			c.MQTT.Broker = broker
		}
	}
	if topic != "" {
		c.Feed.Topic = topic
	}
	if clientID != "" {
		c.MQTT.ClientID = clientID
		c.NATS.Name = clientID
	}
	if bufferSize > 0 {
		c.Feed.BufferSize = bufferSize
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
	if metricsInterval > 0 {
		c.Metrics.UpdateInterval = metricsInterval.String()
	}
}
