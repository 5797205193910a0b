package modules

import (
	"context"

	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/module"
	"github.com/Zapadenec1982/ModESP-sub004/internal/state"
)

// Climate is a hysteresis thermostat controller: it watches a sensor
// reading key and drives a compressor command key accordingly. It reacts
// to Shared State subscription callbacks rather than polling on Update.
type Climate struct {
	store *state.Store
	bus   *bus.Bus

	sensorKey, commandKey string
	setpointC, hysteresisC float64
	enabled                bool
	subHandle              uint32
}

// NewClimate constructs a Climate module bound to store and b.
func NewClimate(store *state.Store, b *bus.Bus) *Climate {
	return &Climate{store: store, bus: b, setpointC: 4.0, hysteresisC: 0.5, sensorKey: "state.sensor.chamber_temp", commandKey: "command.actuator.compressor"}
}

func (c *Climate) Configure(ctx context.Context, section map[string]any) error {
	if v, ok := asFloat(section["setpoint_c"]); ok {
		c.setpointC = v
	}
	if v, ok := asFloat(section["hysteresis_c"]); ok {
		c.hysteresisC = v
	}
	if v, ok := section["enabled"].(bool); ok {
		c.enabled = v
	} else {
		c.enabled = true
	}
	if v, ok := section["sensor_key"].(string); ok && v != "" {
		c.sensorKey = v
	}
	if v, ok := section["command_key"].(string); ok && v != "" {
		c.commandKey = v
	}
	return nil
}

func (c *Climate) Init(ctx context.Context) error { return nil }

// Start subscribes to the configured sensor key; each reading drives the
// compressor command via simple hysteresis control.
func (c *Climate) Start(ctx context.Context) error {
	c.subHandle = c.store.Subscribe(c.sensorKey, c.onReading)
	return nil
}

func (c *Climate) Stop(ctx context.Context) error {
	c.store.Unsubscribe(c.subHandle)
	return nil
}

// Update is a no-op: this module is event-driven via its Shared State
// subscription rather than polled.
func (c *Climate) Update(ctx context.Context) error { return nil }

func (c *Climate) onReading(key string, value state.Value) {
	if !c.enabled {
		return
	}
	doc, ok := value.AsDocument()
	if !ok {
		return
	}
	temp, ok := asFloat(doc["value"])
	if !ok || doc["is_valid"] != true {
		return
	}

	switch {
	case temp > c.setpointC+c.hysteresisC/2:
		_ = c.store.Set(c.commandKey, state.Bool(true))
	case temp < c.setpointC-c.hysteresisC/2:
		_ = c.store.Set(c.commandKey, state.Bool(false))
	}
}

// ClimateManifest builds the manifest for a Climate controller module.
func ClimateManifest(store *state.Store, b *bus.Bus, configSection string) module.Manifest {
	return module.Manifest{
		Name:                 "climate",
		Version:              "1.0.0",
		Type:                 domain.ModuleStandard,
		Priority:             0,
		Dependencies:         []string{"sensor_bridge", "actuator_bridge"},
		ConfigSection:        configSection,
		SubscribedStateKeys:  []string{"state.sensor.*"},
		PublishedStateKeys:   []string{"command.actuator.compressor"},
		Factory:              func() module.Module { return NewClimate(store, b) },
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
