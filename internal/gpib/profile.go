package gpib

import (
	"math"
	"time"
)

// Profile is the calibration data of one simulated multimeter model.
type Profile struct {
	Tag            string
	ConnectLatency time.Duration
	MeasureLatency time.Duration
	BaseMin        float64
	BaseMax        float64
	Noise          float64
	Decimals       int
}

// Round rounds v to the profile's decimal precision.
func (p Profile) Round(v float64) float64 {
	scale := math.Pow(10, float64(p.Decimals))
	return math.Round(v*scale) / scale
}

// sample draws a base magnitude and noise and rounds the sum.
func (p Profile) sample(r Rand) float64 {
	base := uniform(r, p.BaseMin, p.BaseMax)
	noise := uniform(r, -p.Noise, p.Noise)
	return p.Round(base + noise)
}

const (
	connectLatency    = 500 * time.Millisecond
	disconnectLatency = 200 * time.Millisecond
	commandLatency    = 100 * time.Millisecond

	// connectFailureThreshold is the draw at or below which a handshake fails.
	connectFailureThreshold = 0.1
)

// Model profiles, from the oldest bench meter to the highest-resolution one.
var (
	ProfileHP34401A = Profile{
		Tag:            "HP 34401A",
		ConnectLatency: connectLatency,
		MeasureLatency: 300 * time.Millisecond,
		BaseMin:        0.5,
		BaseMax:        9.5,
		Noise:          0.01,
		Decimals:       6,
	}
	ProfileAgilent34410A = Profile{
		Tag:            "Agilent 34410A",
		ConnectLatency: connectLatency,
		MeasureLatency: 250 * time.Millisecond,
		BaseMin:        0.3,
		BaseMax:        8.7,
		Noise:          0.005,
		Decimals:       6,
	}
	ProfileKeysight34461A = Profile{
		Tag:            "Keysight 34461A",
		ConnectLatency: connectLatency,
		MeasureLatency: 200 * time.Millisecond,
		BaseMin:        0.1,
		BaseMax:        9.9,
		Noise:          0.001,
		Decimals:       7,
	}
	ProfileKeysight34465A = Profile{
		Tag:            "Keysight 34465A",
		ConnectLatency: connectLatency,
		MeasureLatency: 150 * time.Millisecond,
		BaseMin:        0.05,
		BaseMax:        9.95,
		Noise:          0.0001,
		Decimals:       8,
	}
	// ProfileCustom has no Tag; CustomInstrument reports the model type it was configured with.
	ProfileCustom = Profile{
		ConnectLatency: connectLatency,
		MeasureLatency: 400 * time.Millisecond,
		BaseMin:        0.0,
		BaseMax:        10.0,
		Noise:          0.05,
		Decimals:       4,
	}
)
