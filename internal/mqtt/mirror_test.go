package mqtt

import (
	"encoding/json"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedPublish struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes. Unused mqtt.Client methods panic via the
// embedded nil interface, which is fine for these tests.
type fakeClient struct {
	mqtt.Client

	connected bool
	published []capturedPublish
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.published = append(f.published, capturedPublish{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  payload.([]byte),
	})
	return &mqtt.DummyToken{}
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func (f *fakeClient) Disconnect(quiesce uint) { f.connected = false }

func TestDisabledMirrorNoOps(t *testing.T) {
	t.Parallel()

	m, err := NewMirror("", 1883, "", "", "missions/updates")
	require.NoError(t, err)

	assert.False(t, m.Enabled())
	assert.NoError(t, m.PublishMission(map[string]any{"id": "m-1"}))
	m.Close()
}

func TestPublishMissionEncodesJSON(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{connected: true}
	m := newMirrorWithClient(fake, "missions/updates")
	require.True(t, m.Enabled())

	require.NoError(t, m.PublishMission(map[string]any{
		"id":     "auto-1755165300000-a1b2c3",
		"status": "pending",
	}))

	require.Len(t, fake.published, 1)
	pub := fake.published[0]
	assert.Equal(t, "missions/updates", pub.topic)
	assert.Equal(t, byte(0), pub.qos)
	assert.False(t, pub.retained)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	assert.Equal(t, "pending", decoded["status"])
}

func TestPublishMissionRejectsUnencodable(t *testing.T) {
	t.Parallel()

	m := newMirrorWithClient(&fakeClient{connected: true}, "missions/updates")
	assert.Error(t, m.PublishMission(map[string]any{"bad": func() {}}))
}

func TestCloseDisconnects(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{connected: true}
	m := newMirrorWithClient(fake, "missions/updates")
	m.Close()
	assert.False(t, fake.connected)
}

func TestNilMirrorIsSafe(t *testing.T) {
	t.Parallel()

	var m *Mirror
	assert.False(t, m.Enabled())
	assert.NoError(t, m.PublishMission("anything"))
	m.Close()
}
