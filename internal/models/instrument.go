package models

// MeasurementType selects the quantity a multimeter is configured to read
type MeasurementType string

const (
	MeasurementDCVoltage  MeasurementType = "DC_VOLTAGE"
	MeasurementACVoltage  MeasurementType = "AC_VOLTAGE"
	MeasurementDCCurrent  MeasurementType = "DC_CURRENT"
	MeasurementACCurrent  MeasurementType = "AC_CURRENT"
	MeasurementResistance MeasurementType = "RESISTANCE"
	MeasurementFrequency  MeasurementType = "FREQUENCY"
	MeasurementPeriod     MeasurementType = "PERIOD"
)

// MeasurementTypes lists every measurement type an instrument may be configured with
var MeasurementTypes = []MeasurementType{
	MeasurementDCVoltage,
	MeasurementACVoltage,
	MeasurementDCCurrent,
	MeasurementACCurrent,
	MeasurementResistance,
	MeasurementFrequency,
	MeasurementPeriod,
}

// Defaults applied to new instrument records
const (
	DefaultMeasurementType = MeasurementDCVoltage
	DefaultRange           = "AUTO"
	DefaultResolution      = "6.5"
)

// Instrument is the stored configuration of a GPIB multimeter
type Instrument struct {
	Timestamps

	ID              int64           `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Type            string          `json:"type" db:"type"`
	GPIBAddress     string          `json:"gpib_address" db:"gpib_address"`
	Description     *string         `json:"description" db:"description"`
	AutoConnect     bool            `json:"auto_connect" db:"auto_connect"`
	MeasurementType MeasurementType `json:"measurement_type" db:"measurement_type"`
	Range           string          `json:"range" db:"range"`
	Resolution      string          `json:"resolution" db:"resolution"`
}

// ApplyDefaults fills in unset optional settings
func (i *Instrument) ApplyDefaults() {
	if i.MeasurementType == "" {
		i.MeasurementType = DefaultMeasurementType
	}
	if i.Range == "" {
		i.Range = DefaultRange
	}
	if i.Resolution == "" {
		i.Resolution = DefaultResolution
	}
}
