// Package driver defines the Sensor/Actuator driver contracts and the
// type-identifier registries used to instantiate them from configuration
// (§4.D).
package driver

import (
	"context"
	"log"
	"sync"

	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
)

// UISchemaField describes one configurable field for a generated
// configuration UI, per §4.D's GetUISchema.
type UISchemaField struct {
	Name  string
	Label string
	Kind  string // "number", "bool", "string"
}

// Sensor is the contract every sensor driver implements.
type Sensor interface {
	Init(ctx context.Context, config map[string]any) error
	Read(ctx context.Context) (domain.SensorReading, error)
	// Update advances time-based behavior (debounce, warm-up). Drivers
	// with nothing to do on a tick implement it as a no-op.
	Update(ctx context.Context) error
	GetType() string
	GetDescription() string
	IsAvailable() bool
	GetConfig() map[string]any
	SetConfig(config map[string]any) error
	GetUISchema() []UISchemaField
	GetDiagnostics() map[string]any
	Calibrate(ctx context.Context, params map[string]any) error
}

// Actuator is the contract every actuator driver implements.
type Actuator interface {
	Init(ctx context.Context, config map[string]any) error
	ExecuteCommand(ctx context.Context, command string, params map[string]any) error
	GetStatus(ctx context.Context) (domain.ActuatorStatus, error)
	// Update advances protection timers and PWM ramps on each tick.
	Update(ctx context.Context) error
	GetType() string
	GetDescription() string
	IsAvailable() bool
	GetConfig() map[string]any
	SetConfig(config map[string]any) error
	GetUISchema() []UISchemaField
	GetDiagnostics() map[string]any
	EmergencyStop(ctx context.Context) error
}

// SensorFactory builds a fresh, uninitialized Sensor driver instance.
type SensorFactory func() Sensor

// ActuatorFactory builds a fresh, uninitialized Actuator driver instance.
type ActuatorFactory func() Actuator

// SensorRegistry maps type identifiers (e.g. "ds18b20") to factories.
// Registration happens once at boot, from an explicit registration pass
// rather than init() side effects — Go gives no ordering guarantee
// across package init() functions any more than the embedded runtimes
// this spec generalizes from do (§4.D, §9).
type SensorRegistry struct {
	mu    sync.RWMutex
	types map[string]SensorFactory
}

// NewSensorRegistry creates an empty registry.
func NewSensorRegistry() *SensorRegistry {
	return &SensorRegistry{types: make(map[string]SensorFactory)}
}

// Register associates typeID with factory. A second registration of the
// same typeID replaces the first and logs a warning rather than erroring,
// matching §4.D's explicit "double-registration replaces, with warning"
// rule.
func (r *SensorRegistry) Register(typeID string, factory SensorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[typeID]; exists {
		log.Printf("[driver] sensor type %q re-registered, replacing previous factory", typeID)
	}
	r.types[typeID] = factory
}

// New instantiates a fresh driver for typeID.
func (r *SensorRegistry) New(typeID string) (Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.types[typeID]
	if !ok {
		return nil, domain.Wrap(domain.KindNotFound, "driver", typeID, domain.ErrDriverTypeUnknown)
	}
	return f(), nil
}

// Types lists every registered sensor type identifier.
func (r *SensorRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	return out
}

// ActuatorRegistry is the actuator-side counterpart of SensorRegistry.
type ActuatorRegistry struct {
	mu    sync.RWMutex
	types map[string]ActuatorFactory
}

// NewActuatorRegistry creates an empty registry.
func NewActuatorRegistry() *ActuatorRegistry {
	return &ActuatorRegistry{types: make(map[string]ActuatorFactory)}
}

// Register associates typeID with factory, replacing and warning on
// collision (§4.D).
func (r *ActuatorRegistry) Register(typeID string, factory ActuatorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[typeID]; exists {
		log.Printf("[driver] actuator type %q re-registered, replacing previous factory", typeID)
	}
	r.types[typeID] = factory
}

// New instantiates a fresh driver for typeID.
func (r *ActuatorRegistry) New(typeID string) (Actuator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.types[typeID]
	if !ok {
		return nil, domain.Wrap(domain.KindNotFound, "driver", typeID, domain.ErrDriverTypeUnknown)
	}
	return f(), nil
}

// Types lists every registered actuator type identifier.
func (r *ActuatorRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	return out
}
