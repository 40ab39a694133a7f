// Package mqtt mirrors mission events to an MQTT broker so field tablets and
// other UIs that already speak MQTT see dispatch activity without polling the
// HTTP API. The mirror is optional: with no broker configured every publish
// is a no-op.
package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/emberwatch/fireline/internal/monitoring"
)

// disconnectQuiesceMillis is how long Close waits for in-flight publishes.
const disconnectQuiesceMillis = 1000

// Mirror publishes mission payloads to a single topic.
type Mirror struct {
	client mqtt.Client
	topic  string
}

// NewMirror connects to the broker and returns a ready mirror. An empty
// broker returns a disabled mirror whose publishes succeed silently.
func NewMirror(broker string, port int, username, password, topic string) (*Mirror, error) {
	if broker == "" {
		return &Mirror{topic: topic}, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port))
	opts.SetClientID("fireline-gateway-" + uuid.NewString()[:8])
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s:%d: %w", broker, port, token.Error())
	}
	monitoring.Logf("mqtt: mission mirror connected to %s:%d, topic %s", broker, port, topic)

	return &Mirror{client: client, topic: topic}, nil
}

// newMirrorWithClient wires an existing client, for tests.
func newMirrorWithClient(client mqtt.Client, topic string) *Mirror {
	return &Mirror{client: client, topic: topic}
}

// Enabled reports whether a broker connection exists.
func (m *Mirror) Enabled() bool { return m != nil && m.client != nil }

// PublishMission sends the JSON encoding of v to the missions topic.
// Disabled mirrors return nil without publishing.
func (m *Mirror) PublishMission(v any) error {
	if !m.Enabled() {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode mission for mqtt: %w", err)
	}
	token := m.client.Publish(m.topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker. Safe on disabled mirrors.
func (m *Mirror) Close() {
	if !m.Enabled() {
		return
	}
	if m.client.IsConnected() {
		m.client.Disconnect(disconnectQuiesceMillis)
	}
}
