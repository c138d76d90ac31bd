package gpib

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

func TestProfileRoundDecimalPlaces(t *testing.T) {
	const raw = 1.123456789

	tests := []struct {
		name    string
		profile Profile
		want    float64
	}{
		{"HP34401A", ProfileHP34401A, 1.123457},
		{"Agilent34410A", ProfileAgilent34410A, 1.123457},
		{"Keysight34461A", ProfileKeysight34461A, 1.1234568},
		{"Keysight34465A", ProfileKeysight34465A, 1.12345679},
		{"Custom", ProfileCustom, 1.1235},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.Round(raw))
		})
	}
}

func TestProfilesOrderedByPrecision(t *testing.T) {
	named := []Profile{ProfileHP34401A, ProfileAgilent34410A, ProfileKeysight34461A, ProfileKeysight34465A}
	for i := 1; i < len(named); i++ {
		assert.GreaterOrEqual(t, named[i].Decimals, named[i-1].Decimals, named[i].Tag)
		assert.Less(t, named[i].Noise, named[i-1].Noise, named[i].Tag)
		assert.Less(t, named[i].MeasureLatency, named[i-1].MeasureLatency, named[i].Tag)
	}

	assert.Less(t, ProfileCustom.Decimals, ProfileHP34401A.Decimals)
	assert.Greater(t, ProfileCustom.Noise, ProfileHP34401A.Noise)
	assert.Greater(t, ProfileCustom.BaseMax-ProfileCustom.BaseMin, ProfileHP34401A.BaseMax-ProfileHP34401A.BaseMin)
}

func TestUnitFor(t *testing.T) {
	want := map[models.MeasurementType]string{
		models.MeasurementDCVoltage:  "V DC",
		models.MeasurementACVoltage:  "V AC",
		models.MeasurementDCCurrent:  "A DC",
		models.MeasurementACCurrent:  "A AC",
		models.MeasurementResistance: "Ω",
		models.MeasurementFrequency:  "Hz",
		models.MeasurementPeriod:     "s",
	}
	require.Len(t, models.MeasurementTypes, len(want))

	for _, mt := range models.MeasurementTypes {
		assert.Equal(t, want[mt], UnitFor(mt), string(mt))
	}
	assert.Equal(t, "V DC", UnitFor("TEMPERATURE"))
	assert.Equal(t, "V DC", UnitFor(""))
}

func TestConnectFollowsRandomDraw(t *testing.T) {
	ctx := context.Background()

	drv := NewHP34401A(testInstrument(1, ModelHP34401A, models.MeasurementDCVoltage), Env{Rand: newSeqRand(0.11), Sleep: noSleep})
	ok, err := drv.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, drv.Connected())

	drv = NewHP34401A(testInstrument(2, ModelHP34401A, models.MeasurementDCVoltage), Env{Rand: newSeqRand(0.1), Sleep: noSleep})
	ok, err = drv.Connect(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a draw of exactly 0.1 fails the handshake")
	assert.False(t, drv.Connected())
}

func TestBusOperationsRunToCompletionAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	drv := NewKeysight34461A(testInstrument(1, ModelKeysight34461A, models.MeasurementDCVoltage), Env{Rand: newSeqRand(0.5), Sleep: ScaledSleep(0.001)})

	ok, err := drv.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	m, err := drv.Measure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "V DC", m.Unit)

	ok, err = drv.Disconnect(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, drv.Connected())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	drv := NewAgilent34410A(testInstrument(1, ModelAgilent34410A, models.MeasurementDCVoltage), testEnv())

	ok, err := drv.Disconnect(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = drv.Connect(ctx)
	require.NoError(t, err)
	ok, err = drv.Disconnect(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, drv.Connected())

	ok, err = drv.Disconnect(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMeasureRequiresConnection(t *testing.T) {
	ctx := context.Background()
	constructors := []Constructor{NewHP34401A, NewAgilent34410A, NewKeysight34461A, NewKeysight34465A, NewCustomInstrument}

	for _, newDriver := range constructors {
		drv := newDriver(testInstrument(1, "x", models.MeasurementDCVoltage), testEnv())
		m, err := drv.Measure(ctx)
		assert.Nil(t, m)
		assert.True(t, errors.Is(err, ErrNotConnected))
		assert.Nil(t, drv.LastMeasurement())
	}
}

func TestMeasureUsesModelProfile(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		newDriver Constructor
		modelType string
		profile   Profile
		tag       string
	}{
		{NewHP34401A, ModelHP34401A, ProfileHP34401A, "HP 34401A"},
		{NewAgilent34410A, ModelAgilent34410A, ProfileAgilent34410A, "Agilent 34410A"},
		{NewKeysight34461A, ModelKeysight34461A, ProfileKeysight34461A, "Keysight 34461A"},
		{NewKeysight34465A, ModelKeysight34465A, ProfileKeysight34465A, "Keysight 34465A"},
		{NewCustomInstrument, "3458A", ProfileCustom, "Custom: 3458A"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			// connect draw, then base and noise draws
			rnd := newSeqRand(0.9, 0.123456789, 0.987654321)
			inst := testInstrument(42, tt.modelType, models.MeasurementACCurrent)
			inst.Range = "10"
			inst.Resolution = "5.5"
			drv := tt.newDriver(inst, Env{Rand: rnd, Sleep: noSleep})

			ok, err := drv.Connect(ctx)
			require.NoError(t, err)
			require.True(t, ok)

			m, err := drv.Measure(ctx)
			require.NoError(t, err)

			base := tt.profile.BaseMin + (tt.profile.BaseMax-tt.profile.BaseMin)*0.123456789
			noise := -tt.profile.Noise + 2*tt.profile.Noise*0.987654321
			assert.Equal(t, tt.profile.Round(base+noise), m.Value)
			assert.Equal(t, m.Value, tt.profile.Round(m.Value))

			assert.Equal(t, "A AC", m.Unit)
			assert.Equal(t, int64(42), m.InstrumentID)
			assert.Equal(t, models.MeasurementACCurrent, m.MeasurementType)
			assert.Equal(t, "10", m.Range)
			assert.Equal(t, "5.5", m.Resolution)
			assert.Equal(t, tt.tag, m.InstrumentType)
			assert.False(t, m.Timestamp.IsZero())
			assert.Same(t, m, drv.LastMeasurement())
		})
	}
}

func TestMeasureStaysWithinProfileRange(t *testing.T) {
	ctx := context.Background()
	drv := NewKeysight34465A(testInstrument(1, ModelKeysight34465A, models.MeasurementDCVoltage),
		Env{Rand: NewRand(7), Sleep: noSleep})

	// A seeded source may fail the handshake; keep trying until it succeeds.
	for !drv.Connected() {
		_, err := drv.Connect(ctx)
		require.NoError(t, err)
	}

	p := ProfileKeysight34465A
	for i := 0; i < 200; i++ {
		m, err := drv.Measure(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, m.Value, p.Round(p.BaseMin-p.Noise))
		assert.LessOrEqual(t, m.Value, p.Round(p.BaseMax+p.Noise))
	}
}

func TestCommandAndQuery(t *testing.T) {
	ctx := context.Background()
	drv := NewKeysight34461A(testInstrument(1, ModelKeysight34461A, models.MeasurementDCVoltage), testEnv())

	_, err := drv.SendCommand(ctx, "*RST")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = drv.Query(ctx, "*IDN?")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = drv.Connect(ctx)
	require.NoError(t, err)

	resp, err := drv.SendCommand(ctx, "CONF:VOLT:DC 10")
	require.NoError(t, err)
	assert.Equal(t, "OK: CONF:VOLT:DC 10", resp)

	resp, err = drv.Query(ctx, "*IDN?")
	require.NoError(t, err)
	assert.Equal(t, "Response to: *IDN?", resp)
}
