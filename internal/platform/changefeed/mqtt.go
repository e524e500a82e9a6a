package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher is the part of mqtt.Client the mirror needs.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTMirror copies changes to "<prefix>/<table>" topics so mobile clients
// can receive push hints without holding a WebSocket open.
type MQTTMirror struct {
	client  MQTTPublisher
	prefix  string
	qos     byte
	timeout time.Duration
}

func NewMQTTMirror(client MQTTPublisher, prefix string) *MQTTMirror {
	return &MQTTMirror{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     1,
		timeout: 5 * time.Second,
	}
}

// NewMQTTClient connects to broker with auto-reconnect and a clean session.
func NewMQTTClient(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

func (m *MQTTMirror) Topic(table string) string {
	return m.prefix + "/" + table
}

func (m *MQTTMirror) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}

	topic := m.Topic(change.Table)
	token := m.client.Publish(topic, m.qos, false, payload)

	wait := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < wait {
			wait = d
		}
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("publish to %s: timed out after %s", topic, wait)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
