package gpib

import (
	"context"
	"sync"
	"time"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// seqRand replays a fixed sequence of draws, wrapping around at the end.
type seqRand struct {
	mu   sync.Mutex
	vals []float64
	i    int
}

func newSeqRand(vals ...float64) *seqRand {
	return &seqRand{vals: vals}
}

func (r *seqRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// testEnv always succeeds the handshake and draws mid-range readings.
func testEnv() Env {
	return Env{Rand: newSeqRand(0.5), Sleep: noSleep}
}

func testInstrument(id int64, modelType string, mt models.MeasurementType) *models.Instrument {
	inst := &models.Instrument{
		ID:              id,
		Name:            "bench-dmm",
		Type:            modelType,
		GPIBAddress:     "GPIB0::22::INSTR",
		MeasurementType: mt,
	}
	inst.ApplyDefaults()
	return inst
}

// countingDriver wraps a driver and counts handshakes.
type countingDriver struct {
	Driver
	mu       sync.Mutex
	connects int
}

func (d *countingDriver) Connect(ctx context.Context) (bool, error) {
	d.mu.Lock()
	d.connects++
	d.mu.Unlock()
	return d.Driver.Connect(ctx)
}

// faultyDriver fails every bus operation with err, or panics when err is nil.
type faultyDriver struct {
	*session
	err error
}

func (d *faultyDriver) Connect(ctx context.Context) (bool, error) {
	if d.err == nil {
		panic("bus controller gone")
	}
	return false, d.err
}

func (d *faultyDriver) Measure(ctx context.Context) (*models.Measurement, error) {
	return nil, d.err
}
