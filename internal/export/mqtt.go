package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/roach88/sportorg/internal/feed"
)

const (
	DefaultMQTTPrefix = "sportorg"
	mqttConnectWait   = 5 * time.Second
	mqttPublishWait   = 2 * time.Second
)

// mqttClient is the part of mqtt.Client the exporter uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each class ranking as a retained message on
// <prefix>/classes/<class>/results, so a late subscriber gets the latest
// ranking at once.
type MQTT struct {
	client mqttClient
	prefix string
	qos    byte
	logger zerolog.Logger
}

// MQTTConfig configures DialMQTT.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Prefix   string
}

// DialMQTT connects to the broker. The client reconnects on its own after
// a lost connection.
func DialMQTT(cfg MQTTConfig, logger zerolog.Logger) (*MQTT, error) {
	log := logger.With().Str("broker", cfg.Broker).Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost, reconnecting")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectWait) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return newMQTT(client, cfg.Prefix, logger), nil
}

func newMQTT(client mqttClient, prefix string, logger zerolog.Logger) *MQTT {
	if prefix == "" {
		prefix = DefaultMQTTPrefix
	}
	return &MQTT{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		qos:    1,
		logger: logger,
	}
}

func (m *MQTT) Name() string { return "mqtt" }

// Topic returns the topic a class ranking is published on.
func (m *MQTT) Topic(classID string) string {
	return fmt.Sprintf("%s/classes/%s/results", m.prefix, classID)
}

func (m *MQTT) Publish(_ context.Context, snap feed.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ClassID, err)
	}
	topic := m.Topic(snap.ClassID)
	token := m.client.Publish(topic, m.qos, true, payload)
	if !token.WaitTimeout(mqttPublishWait) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	m.logger.Info().Msg("mqtt disconnected")
	return nil
}
