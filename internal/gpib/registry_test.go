package gpib

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	env := testEnv()

	tests := []struct {
		modelType string
		want      interface{}
	}{
		{"34401A", &HP34401A{}},
		{"34410A", &Agilent34410A{}},
		{"34461A", &Keysight34461A{}},
		{"34465A", &Keysight34465A{}},
		{"custom", &CustomInstrument{}},
		{"3458A", &CustomInstrument{}},
		{"", &CustomInstrument{}},
	}

	for _, tt := range tests {
		drv := r.Lookup(tt.modelType)(testInstrument(1, tt.modelType, models.MeasurementDCVoltage), env)
		assert.IsType(t, tt.want, drv, tt.modelType)
		assert.False(t, drv.Connected())
	}
}

func TestRegistryModelTypes(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"34401A", "34410A", "34461A", "34465A", "custom"}, r.ModelTypes())

	r.Register("3458A", NewHP34401A)
	assert.Contains(t, r.ModelTypes(), "3458A")
	assert.IsType(t, &HP34401A{}, r.Lookup("3458A")(testInstrument(1, "3458A", models.MeasurementDCVoltage), testEnv()))
}
