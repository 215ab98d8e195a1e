package telemetry

import (
	"context"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Timeout  time.Duration
}

// MQTT publishes each report as retained JSON, so a dashboard that
// subscribes later still sees the last known position.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
}

func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt connection lost broker=%s: %v", cfg.Broker, err)
		})
	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	log.Printf("mqtt connected broker=%s topic=%s", cfg.Broker, cfg.Topic)
	return &MQTT{cfg: cfg, client: client}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Send(ctx context.Context, r Report) error {
	payload, err := r.JSON()
	if err != nil {
		return err
	}
	tok := m.client.Publish(m.cfg.Topic, 0, true, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.cfg.Timeout):
		return fmt.Errorf("mqtt publish %s: timeout", m.cfg.Topic)
	}
	return tok.Error()
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
