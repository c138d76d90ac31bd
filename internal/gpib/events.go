package gpib

import (
	"time"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// EventType names a session lifecycle transition.
type EventType string

const (
	EventConnected         EventType = "connected"
	EventConnectFailed     EventType = "connect_failed"
	EventDisconnected      EventType = "disconnected"
	EventMeasurement       EventType = "measurement"
	EventMeasurementFailed EventType = "measurement_failed"
)

// Event describes something the Manager did to an instrument session.
type Event struct {
	Type        EventType
	Instrument  *models.Instrument
	Model       string
	Measurement *models.Measurement
	Err         error
	Duration    time.Duration
	At          time.Time
}

// Observer is notified of session events. Observe is called synchronously
// from the goroutine that performed the operation and must not block for long.
type Observer interface {
	Observe(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
