package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gpib-control/gpib-control-server/internal/gpib"
	"github.com/gpib-control/gpib-control-server/internal/models"
)

const eventWriteTimeout = 5 * time.Second

// EventStore persists event log rows
type EventStore interface {
	CreateEventLog(ctx context.Context, event *models.EventLog) error
}

// EventLogger records session events in the event log. Observe only
// enqueues; Run performs the writes.
type EventLogger struct {
	store   EventStore
	queue   chan *models.EventLog
	dropped atomic.Int64
}

// NewEventLogger creates a logger with room for buffer pending rows
func NewEventLogger(store EventStore, buffer int) *EventLogger {
	if buffer <= 0 {
		buffer = 256
	}
	return &EventLogger{
		store: store,
		queue: make(chan *models.EventLog, buffer),
	}
}

// Observe implements gpib.Observer. Rows are dropped when the queue is full.
func (l *EventLogger) Observe(e gpib.Event) {
	l.Enqueue(EventLogFromEvent(e))
}

// Enqueue schedules a row for writing without blocking
func (l *EventLogger) Enqueue(entry *models.EventLog) {
	select {
	case l.queue <- entry:
	default:
		n := l.dropped.Add(1)
		log.Warn().
			Str("type", string(entry.Type)).
			Int64("dropped", n).
			Msg("Event log queue full, dropping event")
	}
}

// Dropped reports how many rows were discarded because the queue was full
func (l *EventLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Run writes queued rows until ctx is cancelled, then flushes what is left
func (l *EventLogger) Run(ctx context.Context) error {
	log.Info().Msg("Event logger started")

	for {
		select {
		case entry := <-l.queue:
			l.write(entry)

		case <-ctx.Done():
			for {
				select {
				case entry := <-l.queue:
					l.write(entry)
				default:
					log.Info().Msg("Event logger stopped")
					return nil
				}
			}
		}
	}
}

func (l *EventLogger) write(entry *models.EventLog) {
	ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)
	defer cancel()

	if err := l.store.CreateEventLog(ctx, entry); err != nil {
		log.Error().
			Err(err).
			Str("type", string(entry.Type)).
			Msg("Failed to create event log")
	}
}

// EventLogFromEvent converts a session event to an event log row
func EventLogFromEvent(e gpib.Event) *models.EventLog {
	entry := &models.EventLog{
		CreatedAt: e.At,
		Code:      string(e.Type),
		Details: models.Variables{
			"model":       e.Model,
			"duration_ms": float64(e.Duration) / float64(time.Millisecond),
		},
	}

	name := "unknown instrument"
	if e.Instrument != nil {
		id := e.Instrument.ID
		entry.InstrumentID = &id
		name = fmt.Sprintf("instrument %d (%s)", id, e.Instrument.Type)
		entry.Details["gpib_address"] = e.Instrument.GPIBAddress
	}

	if e.Err != nil {
		entry.Details["error"] = e.Err.Error()
	}

	switch e.Type {
	case gpib.EventConnected:
		entry.Type = models.EventTypeConnect
		entry.Level = models.EventLevelInfo
		entry.Description = fmt.Sprintf("Connected to %s", name)

	case gpib.EventConnectFailed:
		entry.Type = models.EventTypeConnectFailed
		entry.Level = models.EventLevelWarning
		entry.Description = fmt.Sprintf("Connection to %s failed", name)
		if e.Err != nil {
			entry.Level = models.EventLevelError
		}

	case gpib.EventDisconnected:
		entry.Type = models.EventTypeDisconnect
		entry.Level = models.EventLevelInfo
		entry.Description = fmt.Sprintf("Disconnected from %s", name)

	case gpib.EventMeasurement:
		entry.Type = models.EventTypeMeasurement
		entry.Level = models.EventLevelDebug
		entry.Description = fmt.Sprintf("Measurement taken from %s", name)
		if m := e.Measurement; m != nil {
			entry.Details["value"] = m.Value
			entry.Details["unit"] = m.Unit
			entry.Details["measurement_type"] = string(m.MeasurementType)
		}

	default:
		entry.Type = models.EventTypeError
		entry.Level = models.EventLevelError
		entry.Description = fmt.Sprintf("Operation on %s failed: %s", name, e.Type)
	}

	return entry
}
