package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/gpib-control/gpib-control-server/internal/config"
	"github.com/gpib-control/gpib-control-server/internal/models"
	"github.com/gpib-control/gpib-control-server/internal/server"
)

const mqttPublishTimeout = 5 * time.Second

// Subscriber is the part of *nats.Conn the forwarder needs
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// EventRecorder receives integration failures for the event log
type EventRecorder interface {
	Enqueue(entry *models.EventLog)
}

// Forwarder forwards measurements published on NATS to an HTTP webhook
// and an MQTT broker
type Forwarder struct {
	nc     Subscriber
	cfg    config.IntegrationConfig
	prefix string
	events EventRecorder

	httpClient *http.Client

	mqttMu        sync.Mutex
	mqttClient    mqtt.Client
	newMQTTClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewForwarder creates a forwarder. events may be nil.
func NewForwarder(nc Subscriber, cfg config.IntegrationConfig, prefix string, events EventRecorder) *Forwarder {
	return &Forwarder{
		nc:     nc,
		cfg:    cfg,
		prefix: prefix,
		events: events,
		httpClient: &http.Client{
			Timeout: cfg.HTTP.Timeout,
		},
		newMQTTClient: mqtt.NewClient,
	}
}

// Enabled reports whether any target is configured
func (f *Forwarder) Enabled() bool {
	return f.cfg.HTTP.Enabled || f.cfg.MQTT.Enabled
}

// Start subscribes to measurement subjects and forwards until ctx is done
func (f *Forwarder) Start(ctx context.Context) error {
	subject := server.MeasurementSubjects(f.prefix)

	sub, err := f.nc.Subscribe(subject, f.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to measurements: %w", err)
	}

	log.Info().
		Str("subject", subject).
		Bool("http", f.cfg.HTTP.Enabled).
		Bool("mqtt", f.cfg.MQTT.Enabled).
		Msg("Integration forwarder started")

	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil {
		log.Debug().Err(err).Msg("Unsubscribe measurements")
	}
	f.closeMQTT()

	return nil
}

func (f *Forwarder) handleMessage(msg *nats.Msg) {
	var session server.SessionMessage
	if err := json.Unmarshal(msg.Data, &session); err != nil {
		log.Error().
			Err(err).
			Str("subject", msg.Subject).
			Msg("Failed to parse session message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.HTTP.Timeout+mqttPublishTimeout)
	defer cancel()

	if err := f.Forward(ctx, &session); err != nil {
		log.Error().
			Err(err).
			Int64("instrument_id", session.InstrumentID).
			Msg("Failed to forward measurement")
	}
}

// Forward sends one measurement to every enabled target. Messages without
// a measurement are ignored.
func (f *Forwarder) Forward(ctx context.Context, msg *server.SessionMessage) error {
	if msg.Measurement == nil {
		return nil
	}

	payload, err := json.Marshal(newForwardPayload(msg))
	if err != nil {
		return fmt.Errorf("marshal forward payload: %w", err)
	}

	var errs []error

	if f.cfg.HTTP.Enabled {
		if err := f.forwardToHTTP(ctx, payload); err != nil {
			f.recordFailure(msg, "http", err)
			errs = append(errs, err)
		}
	}

	if f.cfg.MQTT.Enabled {
		if err := f.forwardToMQTT(RenderTopic(f.cfg.MQTT.TopicPattern, msg), payload); err != nil {
			f.recordFailure(msg, "mqtt", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// forwardToHTTP posts the payload to the webhook
func (f *Forwarder) forwardToHTTP(ctx context.Context, payload []byte) error {
	endpoint := f.cfg.HTTP.Endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range f.cfg.HTTP.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("post webhook %s: status %d", endpoint, resp.StatusCode)
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Msg("Measurement forwarded to HTTP")

	return nil
}

// forwardToMQTT publishes the payload, connecting on first use
func (f *Forwarder) forwardToMQTT(topic string, payload []byte) error {
	client, err := f.mqtt()
	if err != nil {
		return err
	}

	token := client.Publish(topic, f.cfg.MQTT.QoS, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	log.Debug().Str("topic", topic).Msg("Measurement forwarded to MQTT")
	return nil
}

func (f *Forwarder) mqtt() (mqtt.Client, error) {
	f.mqttMu.Lock()
	defer f.mqttMu.Unlock()

	if f.mqttClient != nil && f.mqttClient.IsConnected() {
		return f.mqttClient, nil
	}

	cfg := f.cfg.MQTT
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.BrokerURL).Msg("MQTT client connected")
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Error().Err(err).Str("broker", cfg.BrokerURL).Msg("MQTT connection lost")
	})

	client := f.newMQTTClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect mqtt %s: timeout", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.BrokerURL, err)
	}

	f.mqttClient = client
	return client, nil
}

func (f *Forwarder) closeMQTT() {
	f.mqttMu.Lock()
	defer f.mqttMu.Unlock()

	if f.mqttClient != nil {
		if f.mqttClient.IsConnected() {
			f.mqttClient.Disconnect(250)
		}
		f.mqttClient = nil
		log.Info().Msg("MQTT client disconnected")
	}
}

func (f *Forwarder) recordFailure(msg *server.SessionMessage, target string, err error) {
	if f.events == nil {
		return
	}

	id := msg.InstrumentID
	f.events.Enqueue(&models.EventLog{
		CreatedAt:    time.Now().UTC(),
		InstrumentID: &id,
		Type:         models.EventTypeIntegration,
		Level:        models.EventLevelError,
		Code:         target + "_forward_failed",
		Description:  fmt.Sprintf("Forwarding measurement to %s failed", target),
		Details: models.Variables{
			"error": err.Error(),
		},
	})
}

// RenderTopic fills the {instrument_id} and {type} placeholders of pattern
func RenderTopic(pattern string, msg *server.SessionMessage) string {
	measurementType := ""
	if msg.Measurement != nil {
		measurementType = strings.ToLower(string(msg.Measurement.MeasurementType))
	}

	return strings.NewReplacer(
		"{instrument_id}", strconv.FormatInt(msg.InstrumentID, 10),
		"{type}", measurementType,
	).Replace(pattern)
}

// forwardPayload is the body sent to external targets
type forwardPayload struct {
	InstrumentID    int64     `json:"instrument_id"`
	InstrumentName  string    `json:"instrument_name"`
	InstrumentType  string    `json:"instrument_type"`
	GPIBAddress     string    `json:"gpib_address"`
	Value           float64   `json:"value"`
	Unit            string    `json:"unit"`
	MeasurementType string    `json:"measurement_type"`
	Range           string    `json:"range"`
	Resolution      string    `json:"resolution"`
	Timestamp       time.Time `json:"timestamp"`
}

func newForwardPayload(msg *server.SessionMessage) forwardPayload {
	m := msg.Measurement
	return forwardPayload{
		InstrumentID:    msg.InstrumentID,
		InstrumentName:  msg.InstrumentName,
		InstrumentType:  m.InstrumentType,
		GPIBAddress:     msg.GPIBAddress,
		Value:           m.Value,
		Unit:            m.Unit,
		MeasurementType: string(m.MeasurementType),
		Range:           m.Range,
		Resolution:      m.Resolution,
		Timestamp:       m.Timestamp,
	}
}
