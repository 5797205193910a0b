// Package modules holds the built-in module implementations bundled
// with the firmware: the scheduling-seam bridges that drive the
// Sensor/Actuator Managers from the tick loop, a climate controller, and
// a heartbeat reporter.
package modules

import (
	"context"

	"github.com/Zapadenec1982/ModESP-sub004/internal/actuator"
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/module"
	"github.com/Zapadenec1982/ModESP-sub004/internal/sensor"
)

// SensorBridge is the CRITICAL-type module that drives the Sensor
// Manager's Update from the scheduler tick (§4.H item 2 needs a module
// in the list for every tick-driven subsystem; the manager itself is the
// mechanism, this bridge is the scheduling seam).
type SensorBridge struct {
	mgr *sensor.Manager
}

func (b *SensorBridge) Configure(ctx context.Context, section map[string]any) error {
	return b.mgr.Configure(ctx, section)
}
func (b *SensorBridge) Init(ctx context.Context) error  { return nil }
func (b *SensorBridge) Start(ctx context.Context) error { return nil }
func (b *SensorBridge) Stop(ctx context.Context) error  { return nil }
func (b *SensorBridge) Update(ctx context.Context) error { return b.mgr.Update(ctx) }

// SensorBridgeManifest builds the manifest for a SensorBridge wrapping
// mgr, bound to configSection (typically "sensors").
func SensorBridgeManifest(mgr *sensor.Manager, configSection string) module.Manifest {
	return module.Manifest{
		Name:                "sensor_bridge",
		Version:             "1.0.0",
		Type:                domain.ModuleCritical,
		Priority:            0,
		ConfigSection:       configSection,
		PublishedEvents:     []string{"sensor.reading"},
		PublishedStateKeys:  []string{"state.sensor.*"},
		Factory:             func() module.Module { return &SensorBridge{mgr: mgr} },
	}
}

// ActuatorBridge is the CRITICAL-type counterpart driving the Actuator
// Manager's Update from the scheduler tick.
type ActuatorBridge struct {
	mgr *actuator.Manager
}

func (b *ActuatorBridge) Configure(ctx context.Context, section map[string]any) error {
	return b.mgr.Configure(ctx, section)
}
func (b *ActuatorBridge) Init(ctx context.Context) error  { return nil }
func (b *ActuatorBridge) Start(ctx context.Context) error { return nil }
func (b *ActuatorBridge) Stop(ctx context.Context) error {
	return b.mgr.EmergencyStopAll(ctx)
}
func (b *ActuatorBridge) Update(ctx context.Context) error { return b.mgr.Update(ctx) }

// ActuatorBridgeManifest builds the manifest for an ActuatorBridge
// wrapping mgr, bound to configSection (typically "actuators").
func ActuatorBridgeManifest(mgr *actuator.Manager, configSection string) module.Manifest {
	return module.Manifest{
		Name:                "actuator_bridge",
		Version:             "1.0.0",
		Type:                domain.ModuleCritical,
		Priority:            1,
		ConfigSection:       configSection,
		PublishedEvents:     []string{"actuator.command", "actuator.emergency_stop"},
		PublishedStateKeys:  []string{"state.actuator.*"},
		SubscribedStateKeys: []string{"command.actuator.*"},
		Factory:             func() module.Module { return &ActuatorBridge{mgr: mgr} },
	}
}
