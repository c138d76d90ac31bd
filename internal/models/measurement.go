package models

import (
	"time"

	"github.com/google/uuid"
)

// Measurement is a single reading taken from a connected instrument.
// Values are created once by a driver and never modified afterwards.
// ID is set when the reading is stored; live readings have none.
type Measurement struct {
	ID              *uuid.UUID      `json:"id,omitempty" db:"id"`
	Value           float64         `json:"value" db:"value"`
	Unit            string          `json:"unit" db:"unit"`
	Timestamp       time.Time       `json:"timestamp" db:"timestamp"`
	InstrumentID    int64           `json:"instrument_id" db:"instrument_id"`
	MeasurementType MeasurementType `json:"measurement_type" db:"measurement_type"`
	Range           string          `json:"range" db:"range"`
	Resolution      string          `json:"resolution" db:"resolution"`
	InstrumentType  string          `json:"instrument_type" db:"instrument_type"`
}
