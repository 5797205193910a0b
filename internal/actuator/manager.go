// Package actuator implements the Actuator Manager (§4.F): it owns
// actuator driver instances, dispatches commands observed on Shared
// State, and republishes status on command and on a periodic cadence.
package actuator

import (
	"context"
	"log"

	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/driver"
	"github.com/Zapadenec1982/ModESP-sub004/internal/metrics"
	"github.com/Zapadenec1982/ModESP-sub004/internal/state"
)

// defaultStatusRepublishTicks is one second at the 100ms tick_period_ms of
// the default system config section; callers configure ticks explicitly
// for any other tick period.
const defaultStatusRepublishTicks = 10

// Instance is one configured actuator driver plus its bookkeeping.
type Instance struct {
	Role          string
	Driver        driver.Actuator
	CommandKey    string
	StatusKey     string
	subHandle     uint32
	commandCount  uint64
}

// Manager owns the current set of actuator instances.
type Manager struct {
	registry *driver.ActuatorRegistry
	store    *state.Store
	bus      *bus.Bus

	instances            []*Instance
	statusRepublishTicks int
	tickCount            int
}

// New creates a Manager bound to the given registry, shared state, and
// event bus.
func New(registry *driver.ActuatorRegistry, store *state.Store, b *bus.Bus) *Manager {
	return &Manager{registry: registry, store: store, bus: b, statusRepublishTicks: defaultStatusRepublishTicks}
}

type actuatorEntry struct {
	Role       string
	Type       string
	Config     map[string]any
	CommandKey string
	StatusKey  string
}

// Configure drops all existing instances (unsubscribing their command
// keys) and rebuilds them from doc.
func (m *Manager) Configure(ctx context.Context, doc map[string]any) error {
	for _, inst := range m.instances {
		m.store.Unsubscribe(inst.subHandle)
	}
	m.instances = nil

	entries := parseActuatorEntries(doc["actuators"])
	for _, e := range entries {
		d, err := m.registry.New(e.Type)
		if err != nil {
			log.Printf("[actuator] role %q: unknown driver type %q: %v", e.Role, e.Type, err)
			continue
		}
		if err := d.Init(ctx, e.Config); err != nil {
			log.Printf("[actuator] role %q: init failed: %v", e.Role, err)
			continue
		}
		inst := &Instance{Role: e.Role, Driver: d, CommandKey: e.CommandKey, StatusKey: e.StatusKey}
		inst.subHandle = m.store.Subscribe(e.CommandKey, m.dispatcherFor(inst))
		m.instances = append(m.instances, inst)
		m.publishStatus(ctx, inst)
	}
	return nil
}

// dispatcherFor returns the Shared State subscription callback for inst:
// on command receipt it dispatches to the driver, republishes status, and
// emits actuator.command.
func (m *Manager) dispatcherFor(inst *Instance) func(key string, value state.Value) {
	return func(key string, value state.Value) {
		ctx := context.Background()
		params := commandParams(value)
		inst.commandCount++

		err := inst.Driver.ExecuteCommand(ctx, "set", params)
		success := err == nil
		if err != nil {
			log.Printf("[actuator] role %q: command failed: %v", inst.Role, err)
			metrics.ActuatorCommandsTotal.WithLabelValues(inst.Role, "error").Inc()
		} else {
			metrics.ActuatorCommandsTotal.WithLabelValues(inst.Role, "ok").Inc()
		}
		m.publishStatus(ctx, inst)

		if pubErr := m.bus.PublishPriority("actuator.command", map[string]any{
			"role":    inst.Role,
			"success": success,
		}, domain.PriorityNormal); pubErr != nil {
			log.Printf("[actuator] role %q: publish actuator.command: %v", inst.Role, pubErr)
		}
	}
}

func commandParams(value state.Value) map[string]any {
	if b, ok := value.AsBool(); ok {
		return map[string]any{"state": b}
	}
	if f, ok := value.AsFloat(); ok {
		return map[string]any{"duty": f}
	}
	if doc, ok := value.AsDocument(); ok {
		return doc
	}
	return map[string]any{}
}

func (m *Manager) publishStatus(ctx context.Context, inst *Instance) {
	status, err := inst.Driver.GetStatus(ctx)
	if err != nil {
		log.Printf("[actuator] role %q: get status: %v", inst.Role, err)
		return
	}
	doc := map[string]any{
		"is_active":         status.IsActive,
		"current_value":     status.CurrentValue,
		"state_description": status.StateDescription,
		"is_healthy":        status.IsHealthy,
	}
	if inst.StatusKey != "" {
		if err := m.store.Set(inst.StatusKey, state.Document(doc)); err != nil {
			log.Printf("[actuator] role %q: publish status: %v", inst.Role, err)
		}
	}
}

// Update advances every driver's time-based behavior (protection timers,
// PWM ramps) and, every statusRepublishTicks ticks, republishes status
// for all instances.
func (m *Manager) Update(ctx context.Context) error {
	for _, inst := range m.instances {
		if err := inst.Driver.Update(ctx); err != nil {
			log.Printf("[actuator] role %q: driver update: %v", inst.Role, err)
		}
	}

	m.tickCount++
	if m.statusRepublishTicks > 0 && m.tickCount%m.statusRepublishTicks == 0 {
		for _, inst := range m.instances {
			m.publishStatus(ctx, inst)
		}
	}
	return nil
}

// EmergencyStopAll forces every actuator to its safe state, republishes
// status, and emits actuator.emergency_stop (§4.F Emergency stop).
func (m *Manager) EmergencyStopAll(ctx context.Context) error {
	for _, inst := range m.instances {
		if err := inst.Driver.EmergencyStop(ctx); err != nil {
			log.Printf("[actuator] role %q: emergency stop: %v", inst.Role, err)
		}
		m.publishStatus(ctx, inst)
	}
	return m.bus.PublishPriority("actuator.emergency_stop", nil, domain.PriorityCritical)
}

// Instances returns the current live instance list (read-only use).
func (m *Manager) Instances() []*Instance { return m.instances }

func parseActuatorEntries(raw any) []actuatorEntry {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []actuatorEntry
	for _, item := range list {
		entryMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := entryMap["role"].(string)
		typ, _ := entryMap["type"].(string)
		cfg, _ := entryMap["config"].(map[string]any)
		commandKey, _ := entryMap["command_key"].(string)
		statusKey, _ := entryMap["status_key"].(string)
		if commandKey == "" && role != "" {
			commandKey = "command.actuator." + role
		}
		if statusKey == "" && role != "" {
			statusKey = "state.actuator." + role
		}
		out = append(out, actuatorEntry{Role: role, Type: typ, Config: cfg, CommandKey: commandKey, StatusKey: statusKey})
	}
	return out
}
