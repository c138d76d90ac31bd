package gpib

import (
	"sort"
	"sync"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// Constructor builds a disconnected driver for an instrument.
type Constructor func(inst *models.Instrument, env Env) Driver

// Model types with a dedicated driver.
const (
	ModelHP34401A       = "34401A"
	ModelAgilent34410A  = "34410A"
	ModelKeysight34461A = "34461A"
	ModelKeysight34465A = "34465A"
	ModelCustom         = "custom"
)

// Registry maps model types to driver constructors.
type Registry struct {
	mu       sync.RWMutex
	drivers  map[string]Constructor
	fallback Constructor
}

// NewRegistry returns a registry with the built-in multimeter drivers.
func NewRegistry() *Registry {
	return &Registry{
		drivers: map[string]Constructor{
			ModelHP34401A:       NewHP34401A,
			ModelAgilent34410A:  NewAgilent34410A,
			ModelKeysight34461A: NewKeysight34461A,
			ModelKeysight34465A: NewKeysight34465A,
			ModelCustom:         NewCustomInstrument,
		},
		fallback: NewCustomInstrument,
	}
}

// Register adds or replaces the constructor for a model type.
func (r *Registry) Register(modelType string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[modelType] = c
}

// Lookup returns the constructor for modelType, or the generic driver
// when the type is unknown. It never fails.
func (r *Registry) Lookup(modelType string) Constructor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.drivers[modelType]; ok {
		return c
	}
	return r.fallback
}

// ModelTypes returns the known model types in sorted order.
func (r *Registry) ModelTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.drivers))
	for t := range r.drivers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
