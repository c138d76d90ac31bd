package gpib

import "github.com/gpib-control/gpib-control-server/internal/models"

var unitTable = map[models.MeasurementType]string{
	models.MeasurementDCVoltage:  "V DC",
	models.MeasurementACVoltage:  "V AC",
	models.MeasurementDCCurrent:  "A DC",
	models.MeasurementACCurrent:  "A AC",
	models.MeasurementResistance: "Ω",
	models.MeasurementFrequency:  "Hz",
	models.MeasurementPeriod:     "s",
}

// DefaultUnit is reported for measurement types the unit table does not know.
const DefaultUnit = "V DC"

// UnitFor returns the display unit for a measurement type.
func UnitFor(mt models.MeasurementType) string {
	if unit, ok := unitTable[mt]; ok {
		return unit
	}
	return DefaultUnit
}
