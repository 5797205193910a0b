// Package sensor implements the Sensor Manager (§4.E): it owns sensor
// driver instances created from configuration and polls them at a fixed
// cadence, publishing readings to Shared State and the Event Bus.
package sensor

import (
	"context"
	"fmt"
	"log"

	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/driver"
	"github.com/Zapadenec1982/ModESP-sub004/internal/metrics"
	"github.com/Zapadenec1982/ModESP-sub004/internal/state"
)

const (
	defaultPollIntervalMs = 10000
	minPollIntervalMs     = 100
	unhealthyFailureCount = 10
	degradedFailureCount  = 3
)

// Instance is one configured sensor driver plus its bookkeeping.
type Instance struct {
	Role         string
	Driver       driver.Sensor
	PublishKey   string
	LastReading  domain.SensorReading
	PollFailures int
}

// Manager owns the current set of sensor instances.
type Manager struct {
	registry *driver.SensorRegistry
	store    *state.Store
	bus      *bus.Bus

	instances       []*Instance
	pollIntervalMs  uint64
	publishOnError  bool
	lastPollMs      uint64
	errorCounter    uint64
}

// New creates a Manager bound to the given registry, shared state, and
// event bus.
func New(registry *driver.SensorRegistry, store *state.Store, b *bus.Bus) *Manager {
	return &Manager{registry: registry, store: store, bus: b, pollIntervalMs: defaultPollIntervalMs}
}

// sensorEntry is the shape of one element of the "sensors" config list.
type sensorEntry struct {
	Role       string
	Type       string
	Config     map[string]any
	PublishKey string
}

// Configure drops all existing instances and rebuilds them from doc,
// per §4.E. Per-entry driver failures are logged and skipped; the
// manager continues with the remaining entries.
func (m *Manager) Configure(ctx context.Context, doc map[string]any) error {
	m.instances = nil

	if v, ok := asFloat(doc["poll_interval_ms"]); ok {
		m.pollIntervalMs = uint64(v)
	} else {
		m.pollIntervalMs = defaultPollIntervalMs
	}
	if m.pollIntervalMs < minPollIntervalMs {
		m.pollIntervalMs = minPollIntervalMs
	}
	if v, ok := doc["publish_on_error"].(bool); ok {
		m.publishOnError = v
	}

	entries := parseSensorEntries(doc["sensors"])
	for _, e := range entries {
		d, err := m.registry.New(e.Type)
		if err != nil {
			log.Printf("[sensor] role %q: unknown driver type %q: %v", e.Role, e.Type, err)
			continue
		}
		if err := d.Init(ctx, e.Config); err != nil {
			log.Printf("[sensor] role %q: init failed: %v", e.Role, err)
			continue
		}
		m.instances = append(m.instances, &Instance{
			Role:       e.Role,
			Driver:     d,
			PublishKey: e.PublishKey,
			LastReading: domain.SensorReading{
				Unit: "C", IsValid: false, ErrorMessage: "not read yet",
			},
		})
	}
	return nil
}

// Update is the scheduler-invoked tick entry point: if less than
// pollIntervalMs has elapsed since the last poll, it is a no-op.
// Otherwise every instance is read in turn; a single driver failure
// does not abort the iteration.
func (m *Manager) Update(ctx context.Context) error {
	now := domain.NowMs()
	if m.lastPollMs != 0 && now-m.lastPollMs < m.pollIntervalMs {
		return nil
	}
	m.lastPollMs = now

	for _, inst := range m.instances {
		if err := inst.Driver.Update(ctx); err != nil {
			log.Printf("[sensor] role %q: driver update: %v", inst.Role, err)
		}
		reading, err := inst.Driver.Read(ctx)
		if err != nil {
			inst.PollFailures++
			m.errorCounter++
			reading.IsValid = false
			if reading.ErrorMessage == "" {
				reading.ErrorMessage = err.Error()
			}
			metrics.SensorReadsTotal.WithLabelValues(inst.Role, "error").Inc()
		} else {
			metrics.SensorReadsTotal.WithLabelValues(inst.Role, "ok").Inc()
		}
		inst.LastReading = reading

		if !reading.IsValid && !m.publishOnError {
			continue
		}
		if inst.PublishKey != "" {
			doc := map[string]any{
				"value":     reading.Value,
				"unit":      reading.Unit,
				"timestamp": reading.TimestampMs,
				"is_valid":  reading.IsValid,
			}
			if err := m.store.Set(inst.PublishKey, state.Document(doc)); err != nil {
				log.Printf("[sensor] role %q: publish to %q: %v", inst.Role, inst.PublishKey, err)
			}
		}
		if err := m.bus.PublishPriority("sensor.reading", map[string]any{
			"role":     inst.Role,
			"value":    reading.Value,
			"is_valid": reading.IsValid,
		}, domain.PriorityNormal); err != nil {
			log.Printf("[sensor] role %q: publish event: %v", inst.Role, err)
		}
	}
	return nil
}

// HealthScore is the fraction (0-100) of instances that are available and
// have fewer than degradedFailureCount poll failures.
func (m *Manager) HealthScore() float64 {
	if len(m.instances) == 0 {
		return 100
	}
	healthy := 0
	for _, inst := range m.instances {
		if inst.Driver.IsAvailable() && inst.PollFailures < degradedFailureCount {
			healthy++
		}
	}
	return 100 * float64(healthy) / float64(len(m.instances))
}

// IsHealthy reports false if any instance has exceeded the hard failure
// threshold.
func (m *Manager) IsHealthy() bool {
	for _, inst := range m.instances {
		if inst.PollFailures > unhealthyFailureCount {
			return false
		}
	}
	return true
}

// Instances returns the current live instance list (read-only use).
func (m *Manager) Instances() []*Instance { return m.instances }

func parseSensorEntries(raw any) []sensorEntry {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []sensorEntry
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		typ, _ := m["type"].(string)
		publishKey, _ := m["publish_key"].(string)
		if publishKey == "" && role != "" {
			publishKey = fmt.Sprintf("state.sensor.%s", role)
		}
		cfg, _ := m["config"].(map[string]any)
		out = append(out, sensorEntry{Role: role, Type: typ, Config: cfg, PublishKey: publishKey})
	}
	return out
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
