package gpib

import (
	"context"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// HP34401A drives the HP 34401A 6½-digit multimeter.
type HP34401A struct{ *session }

// NewHP34401A returns a disconnected HP 34401A driver.
func NewHP34401A(inst *models.Instrument, env Env) Driver {
	return &HP34401A{newSession(inst, env)}
}

func (d *HP34401A) Connect(ctx context.Context) (bool, error) {
	return d.handshake(ctx, ProfileHP34401A.ConnectLatency)
}

func (d *HP34401A) Measure(ctx context.Context) (*models.Measurement, error) {
	return d.measure(ctx, ProfileHP34401A, ProfileHP34401A.Tag)
}

// Agilent34410A drives the Agilent 34410A, a lower-noise successor of the 34401A.
type Agilent34410A struct{ *session }

// NewAgilent34410A returns a disconnected Agilent 34410A driver.
func NewAgilent34410A(inst *models.Instrument, env Env) Driver {
	return &Agilent34410A{newSession(inst, env)}
}

func (d *Agilent34410A) Connect(ctx context.Context) (bool, error) {
	return d.handshake(ctx, ProfileAgilent34410A.ConnectLatency)
}

func (d *Agilent34410A) Measure(ctx context.Context) (*models.Measurement, error) {
	return d.measure(ctx, ProfileAgilent34410A, ProfileAgilent34410A.Tag)
}

// Keysight34461A drives the Keysight Truevolt 34461A.
type Keysight34461A struct{ *session }

// NewKeysight34461A returns a disconnected Keysight 34461A driver.
func NewKeysight34461A(inst *models.Instrument, env Env) Driver {
	return &Keysight34461A{newSession(inst, env)}
}

func (d *Keysight34461A) Connect(ctx context.Context) (bool, error) {
	return d.handshake(ctx, ProfileKeysight34461A.ConnectLatency)
}

func (d *Keysight34461A) Measure(ctx context.Context) (*models.Measurement, error) {
	return d.measure(ctx, ProfileKeysight34461A, ProfileKeysight34461A.Tag)
}

// Keysight34465A drives the Keysight Truevolt 34465A, the highest-resolution model supported.
type Keysight34465A struct{ *session }

// NewKeysight34465A returns a disconnected Keysight 34465A driver.
func NewKeysight34465A(inst *models.Instrument, env Env) Driver {
	return &Keysight34465A{newSession(inst, env)}
}

func (d *Keysight34465A) Connect(ctx context.Context) (bool, error) {
	return d.handshake(ctx, ProfileKeysight34465A.ConnectLatency)
}

func (d *Keysight34465A) Measure(ctx context.Context) (*models.Measurement, error) {
	return d.measure(ctx, ProfileKeysight34465A, ProfileKeysight34465A.Tag)
}

// CustomInstrument is the generic driver used for model types without a dedicated one.
type CustomInstrument struct{ *session }

// NewCustomInstrument returns a disconnected generic driver.
func NewCustomInstrument(inst *models.Instrument, env Env) Driver {
	return &CustomInstrument{newSession(inst, env)}
}

func (d *CustomInstrument) Connect(ctx context.Context) (bool, error) {
	return d.handshake(ctx, ProfileCustom.ConnectLatency)
}

func (d *CustomInstrument) Measure(ctx context.Context) (*models.Measurement, error) {
	return d.measure(ctx, ProfileCustom, "Custom: "+d.instrument.Type)
}
