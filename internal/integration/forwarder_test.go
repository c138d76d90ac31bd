package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpib-control/gpib-control-server/internal/config"
	"github.com/gpib-control/gpib-control-server/internal/gpib"
	"github.com/gpib-control/gpib-control-server/internal/models"
	"github.com/gpib-control/gpib-control-server/internal/server"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type mqttMessage struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeMQTT implements the calls the forwarder makes on mqtt.Client
type fakeMQTT struct {
	mqtt.Client

	mu        sync.Mutex
	connected bool
	connects  int
	messages  []mqttMessage
}

func (c *fakeMQTT) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	c.connects++
	return doneToken{}
}

func (c *fakeMQTT) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeMQTT) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, mqttMessage{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{}
}

type fakeSubscriber struct {
	subject    string
	handler    nats.MsgHandler
	subscribed chan struct{}
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: make(chan struct{})}
}

func (s *fakeSubscriber) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	s.subject = subject
	s.handler = cb
	close(s.subscribed)
	return &nats.Subscription{}, nil
}

type recordedEvents struct {
	mu      sync.Mutex
	entries []*models.EventLog
}

func (r *recordedEvents) Enqueue(entry *models.EventLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func sessionMessage() *server.SessionMessage {
	return &server.SessionMessage{
		InstrumentID:   7,
		InstrumentName: "Bench",
		InstrumentType: "34465A",
		GPIBAddress:    "GPIB0::22::INSTR",
		Event:          gpib.EventMeasurement,
		Measurement: &models.Measurement{
			Value:           1.2345,
			Unit:            "Ω",
			InstrumentID:    7,
			MeasurementType: models.MeasurementResistance,
			Range:           "AUTO",
			Resolution:      "6.5",
			InstrumentType:  "Keysight 34465A",
			Timestamp:       time.Now().UTC(),
		},
	}
}

func TestRenderTopic(t *testing.T) {
	msg := sessionMessage()
	assert.Equal(t, "lab/7/resistance", RenderTopic("lab/{instrument_id}/{type}", msg))
	assert.Equal(t, "static", RenderTopic("static", msg))
}

func TestForwardToHTTP(t *testing.T) {
	var (
		mu      sync.Mutex
		body    forwardPayload
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		headers = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := NewForwarder(newFakeSubscriber(), config.IntegrationConfig{
		HTTP: config.HTTPIntegrationConfig{
			Enabled:  true,
			Endpoint: srv.URL,
			Headers:  map[string]string{"X-Api-Key": "secret"},
			Timeout:  time.Second,
		},
	}, "gpib", nil)

	require.NoError(t, f.Forward(context.Background(), sessionMessage()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "secret", headers.Get("X-Api-Key"))
	assert.Equal(t, int64(7), body.InstrumentID)
	assert.Equal(t, 1.2345, body.Value)
	assert.Equal(t, "RESISTANCE", body.MeasurementType)
	assert.Equal(t, "Keysight 34465A", body.InstrumentType)
}

func TestForwardHTTPFailureIsRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	events := &recordedEvents{}
	f := NewForwarder(newFakeSubscriber(), config.IntegrationConfig{
		HTTP: config.HTTPIntegrationConfig{Enabled: true, Endpoint: srv.URL, Timeout: time.Second},
	}, "gpib", events)

	err := f.Forward(context.Background(), sessionMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")

	require.Len(t, events.entries, 1)
	assert.Equal(t, models.EventTypeIntegration, events.entries[0].Type)
	assert.Equal(t, "http_forward_failed", events.entries[0].Code)
}

func TestForwardToMQTT(t *testing.T) {
	client := &fakeMQTT{}
	f := NewForwarder(newFakeSubscriber(), config.IntegrationConfig{
		MQTT: config.MQTTIntegrationConfig{
			Enabled:      true,
			BrokerURL:    "tcp://localhost:1883",
			ClientID:     "test",
			TopicPattern: "gpib/instruments/{instrument_id}/{type}",
			QoS:          1,
		},
	}, "gpib", nil)
	f.newMQTTClient = func(*mqtt.ClientOptions) mqtt.Client { return client }

	require.NoError(t, f.Forward(context.Background(), sessionMessage()))
	require.NoError(t, f.Forward(context.Background(), sessionMessage()))

	assert.Equal(t, 1, client.connects)
	require.Len(t, client.messages, 2)
	assert.Equal(t, "gpib/instruments/7/resistance", client.messages[0].topic)
	assert.Equal(t, byte(1), client.messages[0].qos)

	var body forwardPayload
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &body))
	assert.Equal(t, "Ω", body.Unit)
}

func TestForwardIgnoresMessagesWithoutMeasurement(t *testing.T) {
	client := &fakeMQTT{}
	f := NewForwarder(newFakeSubscriber(), config.IntegrationConfig{
		MQTT: config.MQTTIntegrationConfig{Enabled: true, BrokerURL: "tcp://localhost:1883"},
	}, "gpib", nil)
	f.newMQTTClient = func(*mqtt.ClientOptions) mqtt.Client { return client }

	msg := sessionMessage()
	msg.Measurement = nil
	require.NoError(t, f.Forward(context.Background(), msg))
	assert.Empty(t, client.messages)
}

func TestStartSubscribesAndForwards(t *testing.T) {
	client := &fakeMQTT{}
	sub := newFakeSubscriber()
	f := NewForwarder(sub, config.IntegrationConfig{
		MQTT: config.MQTTIntegrationConfig{Enabled: true, BrokerURL: "tcp://localhost:1883", TopicPattern: "m/{instrument_id}"},
	}, "lab", nil)
	f.newMQTTClient = func(*mqtt.ClientOptions) mqtt.Client { return client }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Start(ctx) }()

	select {
	case <-sub.subscribed:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not subscribe")
	}
	assert.Equal(t, "lab.instrument.*.measurement", sub.subject)

	data, err := json.Marshal(sessionMessage())
	require.NoError(t, err)
	sub.handler(&nats.Msg{Subject: "lab.instrument.7.measurement", Data: data})
	sub.handler(&nats.Msg{Subject: "lab.instrument.7.measurement", Data: []byte("not json")})

	cancel()
	require.NoError(t, <-done)

	require.Len(t, client.messages, 1)
	assert.Equal(t, "m/7", client.messages[0].topic)
	assert.False(t, client.IsConnected())
}
