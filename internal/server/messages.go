package server

import (
	"fmt"
	"time"

	"github.com/gpib-control/gpib-control-server/internal/gpib"
	"github.com/gpib-control/gpib-control-server/internal/models"
)

// SessionMessage is the JSON body published for every session event
type SessionMessage struct {
	InstrumentID   int64               `json:"instrument_id"`
	InstrumentName string              `json:"instrument_name"`
	InstrumentType string              `json:"instrument_type"`
	GPIBAddress    string              `json:"gpib_address"`
	Event          gpib.EventType      `json:"event"`
	Model          string              `json:"model"`
	Measurement    *models.Measurement `json:"measurement,omitempty"`
	Error          string              `json:"error,omitempty"`
	DurationMs     float64             `json:"duration_ms"`
	Timestamp      time.Time           `json:"timestamp"`
}

// NewSessionMessage flattens a session event for publishing
func NewSessionMessage(e gpib.Event) *SessionMessage {
	msg := &SessionMessage{
		Event:       e.Type,
		Model:       e.Model,
		Measurement: e.Measurement,
		DurationMs:  float64(e.Duration) / float64(time.Millisecond),
		Timestamp:   e.At,
	}

	if e.Instrument != nil {
		msg.InstrumentID = e.Instrument.ID
		msg.InstrumentName = e.Instrument.Name
		msg.InstrumentType = e.Instrument.Type
		msg.GPIBAddress = e.Instrument.GPIBAddress
	}

	if e.Err != nil {
		msg.Error = e.Err.Error()
	}

	return msg
}

// InstrumentSubject returns the subject events of one instrument are published on,
// e.g. "gpib.instrument.7.measurement".
func InstrumentSubject(prefix string, instrumentID int64, event gpib.EventType) string {
	return fmt.Sprintf("%s.instrument.%d.%s", prefix, instrumentID, event)
}

// MeasurementSubjects returns the wildcard subject matching every measurement
func MeasurementSubjects(prefix string) string {
	return fmt.Sprintf("%s.instrument.*.%s", prefix, gpib.EventMeasurement)
}
