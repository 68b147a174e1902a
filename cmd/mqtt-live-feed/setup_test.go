package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-live-feed/config"
	"mqtt-live-feed/internal/logger"
	mqtttransport "mqtt-live-feed/internal/transport/mqtt"
	natstransport "mqtt-live-feed/internal/transport/nats"
)

func baseConfig() *config.Config {
	return &config.Config{
		Transport: config.TransportMQTT,
		MQTT: config.MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "feed-1",
			Username: "user",
			Password: "secret",
		},
		NATS: config.NATSConfig{
			URL:  "nats://localhost:4222",
			Name: "feed-nats",
		},
		Feed: config.FeedConfig{
			Topic:             "vision/results",
			QoS:               1,
			BufferSize:        20,
			ReconnectDelay:    "2s",
			MaxReconnectDelay: "30s",
		},
	}
}

func TestBuildConnectionMQTT(t *testing.T) {
	cc, factory, err := buildConnection(baseConfig(), logger.NewNop())
	require.NoError(t, err)

	assert.IsType(t, &mqtttransport.Factory{}, factory)
	assert.Equal(t, "tcp://localhost:1883", cc.BrokerURI)
	assert.Equal(t, "feed-1", cc.ClientID)
	assert.Equal(t, "vision/results", cc.Topic)
	assert.Equal(t, byte(1), cc.QoS)
	assert.Equal(t, 20, cc.BufferCapacity)
	assert.Equal(t, 2*time.Second, cc.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cc.MaxReconnectDelay)
	require.NotNil(t, cc.Credentials)
	assert.Equal(t, "user", cc.Credentials.Username)
	assert.False(t, cc.UseTLS)
	assert.NoError(t, cc.Validate())
}

func TestBuildConnectionNATS(t *testing.T) {
	cfg := baseConfig()
	cfg.Transport = config.TransportNATS

	cc, factory, err := buildConnection(cfg, logger.NewNop())
	require.NoError(t, err)

	assert.IsType(t, &natstransport.Factory{}, factory)
	assert.Equal(t, "nats://localhost:4222", cc.BrokerURI)
	assert.Equal(t, "feed-nats", cc.ClientID)
	assert.Nil(t, cc.Credentials)
}

func TestBuildConnectionGeneratesClientID(t *testing.T) {
	cfg := baseConfig()
	cfg.MQTT.ClientID = ""

	cc, _, err := buildConnection(cfg, logger.NewNop())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cc.ClientID, clientIDPrefix))
	assert.Len(t, cc.ClientID, len(clientIDPrefix)+8)
}

func TestBuildConnectionErrors(t *testing.T) {
	t.Run("unknown transport", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Transport = "amqp"
		_, _, err := buildConnection(cfg, logger.NewNop())
		assert.Error(t, err)
	})

	t.Run("missing tls files", func(t *testing.T) {
		cfg := baseConfig()
		cfg.MQTT.TLS = config.TLSConfig{Enable: true, CAFile: "/nonexistent/ca.pem"}
		_, _, err := buildConnection(cfg, logger.NewNop())
		assert.ErrorContains(t, err, "failed to create TLS config")
	})
}
