// Package publish delivers detection events to downstream consumers. The
// primary transport is MQTT; a log sink covers setups without a broker.
package publish

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

// DefaultTopic is the topic detection messages are published on.
const DefaultTopic = "iot/detection"

// Sink delivers a single detection message.
type Sink interface {
	Publish(message string) error
	Close() error
}

// MQTTConfig holds broker connection parameters.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos"`
}

// MQTTSink publishes detection messages to an MQTT broker.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// NewMQTTSink connects to the configured broker. Connection failures are
// returned rather than retried; the caller decides whether a broker is
// mandatory for this deployment.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	return &MQTTSink{client: client, topic: topic, qos: cfg.QoS}, nil
}

// Publish sends one message and waits for broker acknowledgement.
func (s *MQTTSink) Publish(message string) error {
	token := s.client.Publish(s.topic, s.qos, false, message)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", s.topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight work to finish.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}

// LogSink writes detection messages to the process log. It is the fallback
// sink when no broker is configured.
type LogSink struct{}

// Publish logs the message.
func (LogSink) Publish(message string) error {
	monitoring.Logf("detection: %s", message)
	return nil
}

// Close is a no-op.
func (LogSink) Close() error { return nil }

// MultiSink fans a message out to several sinks, returning the first error
// after attempting all of them.
type MultiSink []Sink

// Publish delivers to every sink.
func (m MultiSink) Publish(message string) error {
	var firstErr error
	for _, s := range m {
		if err := s.Publish(message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
