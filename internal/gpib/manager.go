package gpib

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// Status summarises the live sessions.
type Status struct {
	ConnectedCount      int      `json:"connected_count"`
	ConnectedIDs        []int64  `json:"connected_ids"`
	AvailableModelTypes []string `json:"available_model_types"`
}

// Manager owns the set of connected instrument sessions.
//
// The session table is safe for concurrent use and is never locked while a
// driver is talking to the bus, so different instruments progress
// independently. Calls for one instrument id must be serialized by the
// caller: a connect racing a disconnect on the same id is not arbitrated.
type Manager struct {
	registry  *Registry
	env       Env
	observers []Observer

	mu       sync.RWMutex
	sessions map[int64]Driver
}

// Option configures a Manager.
type Option func(*Manager)

// WithEnv sets the simulated bus environment handed to new drivers.
func WithEnv(env Env) Option {
	return func(m *Manager) { m.env = env }
}

// WithObserver registers observers for session events.
func WithObserver(obs ...Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, obs...) }
}

// NewManager creates a manager that builds drivers from registry.
func NewManager(registry *Registry, opts ...Option) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	m := &Manager{
		registry: registry,
		env:      DefaultEnv(),
		sessions: make(map[int64]Driver),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.env = m.env.withDefaults()
	return m
}

// ConnectInstrument opens a session for inst. An instrument that already has
// a session is left untouched and reported as connected, even if its stored
// configuration changed since. Failures are logged and reported as false.
func (m *Manager) ConnectInstrument(ctx context.Context, inst *models.Instrument) bool {
	if m.IsConnected(inst.ID) {
		return true
	}

	start := time.Now()
	drv := m.registry.Lookup(inst.Type)(inst, m.env)
	connected, err := guard(func() (bool, error) { return drv.Connect(ctx) })
	if err != nil {
		log.Error().
			Err(err).
			Int64("instrument_id", inst.ID).
			Str("type", inst.Type).
			Msg("Error connecting to instrument")
		m.notify(Event{Type: EventConnectFailed, Instrument: inst, Model: modelName(drv), Err: err, Duration: time.Since(start)})
		return false
	}
	if !connected {
		log.Warn().
			Int64("instrument_id", inst.ID).
			Str("type", inst.Type).
			Str("address", inst.GPIBAddress).
			Msg("Instrument handshake failed")
		m.notify(Event{Type: EventConnectFailed, Instrument: inst, Model: modelName(drv), Duration: time.Since(start)})
		return false
	}

	m.mu.Lock()
	m.sessions[inst.ID] = drv
	m.mu.Unlock()

	log.Info().
		Int64("instrument_id", inst.ID).
		Str("type", inst.Type).
		Str("address", inst.GPIBAddress).
		Msg("Instrument connected")
	m.notify(Event{Type: EventConnected, Instrument: inst, Model: modelName(drv), Duration: time.Since(start)})
	return true
}

// DisconnectInstrument closes the session for inst. Disconnecting an
// instrument without a session succeeds. Failures are logged and reported
// as false.
func (m *Manager) DisconnectInstrument(ctx context.Context, inst *models.Instrument) bool {
	drv, found := m.session(inst.ID)
	if !found {
		return true
	}

	start := time.Now()
	if _, err := guard(func() (bool, error) { return drv.Disconnect(ctx) }); err != nil {
		log.Error().
			Err(err).
			Int64("instrument_id", inst.ID).
			Msg("Error disconnecting from instrument")
		return false
	}

	m.mu.Lock()
	delete(m.sessions, inst.ID)
	m.mu.Unlock()

	log.Info().Int64("instrument_id", inst.ID).Msg("Instrument disconnected")
	m.notify(Event{Type: EventDisconnected, Instrument: inst, Model: modelName(drv), Duration: time.Since(start)})
	return true
}

// guard runs a driver call, turning a panic into an error.
func guard(call func() (bool, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("driver panic: %v", r)
		}
	}()
	return call()
}

// TakeMeasurement reads a value from the connected instrument. Errors are
// wrapped with the instrument id; errors.Is(err, ErrNotConnected) reports a
// missing session.
func (m *Manager) TakeMeasurement(ctx context.Context, inst *models.Instrument) (*models.Measurement, error) {
	drv, found := m.session(inst.ID)
	if !found {
		return nil, fmt.Errorf("take measurement from instrument %d: %w", inst.ID, ErrNotConnected)
	}

	start := time.Now()
	meas, err := drv.Measure(ctx)
	if err != nil {
		m.notify(Event{Type: EventMeasurementFailed, Instrument: inst, Model: modelName(drv), Err: err, Duration: time.Since(start)})
		return nil, fmt.Errorf("take measurement from instrument %d: %w", inst.ID, err)
	}

	m.notify(Event{Type: EventMeasurement, Instrument: inst, Model: modelName(drv), Measurement: meas, Duration: time.Since(start)})
	return meas, nil
}

// SendCommand writes a raw command to the connected instrument.
func (m *Manager) SendCommand(ctx context.Context, inst *models.Instrument, command string) (string, error) {
	drv, found := m.session(inst.ID)
	if !found {
		return "", fmt.Errorf("send command to instrument %d: %w", inst.ID, ErrNotConnected)
	}

	resp, err := drv.SendCommand(ctx, command)
	if err != nil {
		return "", fmt.Errorf("send command to instrument %d: %w", inst.ID, err)
	}
	return resp, nil
}

// Query writes a query to the connected instrument and returns its response.
func (m *Manager) Query(ctx context.Context, inst *models.Instrument, query string) (string, error) {
	drv, found := m.session(inst.ID)
	if !found {
		return "", fmt.Errorf("query instrument %d: %w", inst.ID, ErrNotConnected)
	}

	resp, err := drv.Query(ctx, query)
	if err != nil {
		return "", fmt.Errorf("query instrument %d: %w", inst.ID, err)
	}
	return resp, nil
}

// LastMeasurement returns the most recent reading of the current session, if any.
func (m *Manager) LastMeasurement(id int64) *models.Measurement {
	drv, found := m.session(id)
	if !found {
		return nil
	}
	return drv.LastMeasurement()
}

// IsConnected reports whether id has a live session.
func (m *Manager) IsConnected(id int64) bool {
	_, found := m.session(id)
	return found
}

// Status returns a snapshot of the session table.
func (m *Manager) Status() Status {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return Status{
		ConnectedCount:      len(ids),
		ConnectedIDs:        ids,
		AvailableModelTypes: m.registry.ModelTypes(),
	}
}

// DisconnectAll closes every session and returns how many were closed.
func (m *Manager) DisconnectAll(ctx context.Context) int {
	m.mu.RLock()
	drivers := make([]Driver, 0, len(m.sessions))
	for _, drv := range m.sessions {
		drivers = append(drivers, drv)
	}
	m.mu.RUnlock()

	closed := 0
	for _, drv := range drivers {
		if m.DisconnectInstrument(ctx, drv.Instrument()) {
			closed++
		}
	}
	return closed
}

func (m *Manager) session(id int64) (Driver, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	drv, ok := m.sessions[id]
	return drv, ok
}

func (m *Manager) notify(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	for _, obs := range m.observers {
		m.deliver(obs, e)
	}
}

// deliver hands e to one observer. A panicking observer is logged and
// does not affect the session table or the other observers.
func (m *Manager) deliver(obs Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(e.Type)).
				Interface("panic", r).
				Msg("Session observer panicked")
		}
	}()
	obs.Observe(e)
}

// modelName returns the driver's type name, e.g. "Keysight34465A".
func modelName(drv Driver) string {
	if drv == nil {
		return "unknown"
	}
	t := reflect.TypeOf(drv)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
