package notify

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"psurops/internal/config"
)

// MQTTObserver publishes each event to <topic>/<event_kind>.
type MQTTObserver struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// ConnectMQTT dials the broker described by cfg.
func ConnectMQTT(cfg config.MQTTConfig) (mqtt.Client, error) {
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
	return client, nil
}

// NewMQTTObserver wraps a connected client.
func NewMQTTObserver(client mqtt.Client, topic string, qos int) *MQTTObserver {
	return &MQTTObserver{client: client, topic: topic, qos: byte(qos)}
}

// Deliver implements Observer. The publish is abandoned when ctx ends first.
func (o *MQTTObserver) Deliver(ctx context.Context, e Event) error {
	payload, err := e.JSON()
	if err != nil {
		return err
	}
	topic := o.topic + "/" + string(e.Kind)
	token := o.client.Publish(topic, o.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (o *MQTTObserver) Close() error {
	o.client.Disconnect(250)
	return nil
}
