package main

import (
	"fmt"

	"github.com/google/uuid"

	"mqtt-live-feed/config"
	"mqtt-live-feed/internal/connection"
	"mqtt-live-feed/internal/logger"
	"mqtt-live-feed/internal/transport"
	mqtttransport "mqtt-live-feed/internal/transport/mqtt"
	natstransport "mqtt-live-feed/internal/transport/nats"
)

const clientIDPrefix = "mqtt-live-feed-"

// defaultClientID returns a client id unique to this process
func defaultClientID() string {
	return clientIDPrefix + uuid.NewString()[:8]
}

// buildConnection maps the file configuration onto the connection manager
// config and picks the transport implementation
func buildConnection(cfg *config.Config, log *logger.Logger) (connection.Config, transport.Factory, error) {
	delay, maxDelay := cfg.Feed.ReconnectDelays()
	cc := connection.Config{
		Topic:             cfg.Feed.Topic,
		QoS:               cfg.Feed.QoS,
		ReconnectDelay:    delay,
		MaxReconnectDelay: maxDelay,
		BufferCapacity:    cfg.Feed.BufferSize,
	}

	var (
		tlsCfg   config.TLSConfig
		factory  transport.Factory
		username string
		password string
	)

	switch cfg.Transport {
	case config.TransportNATS:
		cc.BrokerURI = cfg.NATS.URL
		cc.ClientID = cfg.NATS.Name
		username, password = cfg.NATS.Username, cfg.NATS.Password
		tlsCfg = cfg.NATS.TLS
		factory = natstransport.NewFactory(log)
	case config.TransportMQTT:
		cc.BrokerURI = cfg.MQTT.Broker
		cc.ClientID = cfg.MQTT.ClientID
		username, password = cfg.MQTT.Username, cfg.MQTT.Password
		tlsCfg = cfg.MQTT.TLS
		factory = mqtttransport.NewFactory(log)
	default:
		return connection.Config{}, nil, fmt.Errorf("invalid transport: %s", cfg.Transport)
	}

	if cc.ClientID == "" {
		cc.ClientID = defaultClientID()
	}
	if username != "" {
		cc.Credentials = &connection.Credentials{Username: username, Password: password}
	}

	if tlsCfg.Enable {
		t, err := transport.NewTLSConfig(tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.CAFile)
		if err != nil {
			return connection.Config{}, nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		cc.UseTLS = true
		cc.TLS = t
	}

	return cc, factory, nil
}
