package gpib

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// Driver talks to one instrument on the bus.
//
// Every method that touches the bus may block for the model's latency.
// Connect reports a failed handshake as (false, nil); an error means the
// driver itself faulted.
type Driver interface {
	Connect(ctx context.Context) (bool, error)
	Disconnect(ctx context.Context) (bool, error)
	Measure(ctx context.Context) (*models.Measurement, error)
	SendCommand(ctx context.Context, command string) (string, error)
	Query(ctx context.Context, query string) (string, error)

	Connected() bool
	LastMeasurement() *models.Measurement
	Instrument() *models.Instrument
}

// session holds the per-connection state every driver shares.
type session struct {
	instrument *models.Instrument
	env        Env

	mu        sync.Mutex
	connected bool
	last      *models.Measurement
}

func newSession(inst *models.Instrument, env Env) *session {
	return &session{
		instrument: inst,
		env:        env.withDefaults(),
	}
}

func (s *session) Instrument() *models.Instrument {
	return s.instrument
}

func (s *session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *session) LastMeasurement() *models.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *session) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// wait runs a simulated bus latency to completion. Cancelling ctx does not
// cut a bus transaction short.
func (s *session) wait(ctx context.Context, d time.Duration) error {
	return s.env.Sleep(context.WithoutCancel(ctx), d)
}

// handshake simulates the bus handshake for the given latency.
func (s *session) handshake(ctx context.Context, latency time.Duration) (bool, error) {
	if err := s.wait(ctx, latency); err != nil {
		s.setConnected(false)
		return false, fmt.Errorf("handshake: %w", err)
	}

	ok := s.env.Rand.Float64() > connectFailureThreshold
	s.setConnected(ok)
	return ok, nil
}

func (s *session) Disconnect(ctx context.Context) (bool, error) {
	if err := s.wait(ctx, disconnectLatency); err != nil {
		return false, fmt.Errorf("disconnect: %w", err)
	}
	s.setConnected(false)
	return true, nil
}

// measure takes a reading using the calibration of p and tags it with tag.
func (s *session) measure(ctx context.Context, p Profile, tag string) (*models.Measurement, error) {
	if !s.Connected() {
		return nil, ErrNotConnected
	}

	if err := s.wait(ctx, p.MeasureLatency); err != nil {
		return nil, fmt.Errorf("measure: %w", err)
	}

	inst := s.instrument
	m := &models.Measurement{
		Value:           p.sample(s.env.Rand),
		Unit:            UnitFor(inst.MeasurementType),
		Timestamp:       time.Now().UTC(),
		InstrumentID:    inst.ID,
		MeasurementType: inst.MeasurementType,
		Range:           inst.Range,
		Resolution:      inst.Resolution,
		InstrumentType:  tag,
	}

	s.mu.Lock()
	s.last = m
	s.mu.Unlock()

	return m, nil
}

func (s *session) SendCommand(ctx context.Context, command string) (string, error) {
	if !s.Connected() {
		return "", ErrNotConnected
	}
	if err := s.wait(ctx, commandLatency); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}
	return "OK: " + command, nil
}

func (s *session) Query(ctx context.Context, query string) (string, error) {
	if !s.Connected() {
		return "", ErrNotConnected
	}
	if err := s.wait(ctx, commandLatency); err != nil {
		return "", fmt.Errorf("query: %w", err)
	}
	return "Response to: " + query, nil
}
