package sensor

import (
	"context"
	"testing"

	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/driver"
	"github.com/Zapadenec1982/ModESP-sub004/internal/hal"
	"github.com/Zapadenec1982/ModESP-sub004/internal/state"
)

func newTestManager(t *testing.T) (*Manager, *hal.SimEnvironment) {
	t.Helper()
	env := hal.NewSimEnvironment()
	env.AddZone("28-chamber", &hal.ThermalZone{TempC: -18})

	reg := driver.NewSensorRegistry()
	reg.Register("ds18b20", driver.NewDS18B20(env))

	b := bus.New()
	b.Init(16)
	s := state.New()

	m := New(reg, s, b)
	return m, env
}

func TestSensorManagerConfigureAndPoll(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	err := m.Configure(ctx, map[string]any{
		"poll_interval_ms": 100.0,
		"sensors": []any{
			map[string]any{
				"role": "chamber_temp",
				"type": "ds18b20",
				"config": map[string]any{
					"bus_addr": "28-chamber",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if len(m.Instances()) != 1 {
		t.Fatalf("instances = %d, want 1", len(m.Instances()))
	}

	if err := m.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}

	entry, ok := m.store.Get("state.sensor.chamber_temp")
	if !ok {
		t.Fatal("expected reading published to shared state")
	}
	doc, ok := entry.Value.AsDocument()
	if !ok || doc["is_valid"] != true {
		t.Fatalf("published doc = %+v", doc)
	}
}

func TestSensorManagerSkipsUnknownDriverType(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Configure(context.Background(), map[string]any{
		"sensors": []any{
			map[string]any{"role": "x", "type": "nonexistent", "config": map[string]any{}},
		},
	})
	if err != nil {
		t.Fatalf("Configure should not hard-fail on unknown driver: %v", err)
	}
	if len(m.Instances()) != 0 {
		t.Fatalf("expected 0 instances, got %d", len(m.Instances()))
	}
}

func TestSensorManagerHealthScore(t *testing.T) {
	m, _ := newTestManager(t)
	_ = m.Configure(context.Background(), map[string]any{
		"sensors": []any{
			map[string]any{"role": "chamber_temp", "type": "ds18b20", "config": map[string]any{"bus_addr": "28-chamber"}},
		},
	})
	if m.HealthScore() != 100 {
		t.Fatalf("HealthScore = %v, want 100", m.HealthScore())
	}
	m.Instances()[0].PollFailures = 11
	if m.IsHealthy() {
		t.Fatal("expected unhealthy after exceeding failure threshold")
	}
}

func TestSensorManagerRespectsPollInterval(t *testing.T) {
	m, env := newTestManager(t)
	_ = m.Configure(context.Background(), map[string]any{
		"poll_interval_ms": 10000.0,
		"sensors": []any{
			map[string]any{"role": "chamber_temp", "type": "ds18b20", "config": map[string]any{"bus_addr": "28-chamber"}},
		},
	})
	ctx := context.Background()
	_ = m.Update(ctx)
	firstFailures := m.Instances()[0].PollFailures
	firstValue := m.Instances()[0].LastReading.Value
	env.AddZone("28-chamber", &hal.ThermalZone{TempC: 5})
	_ = m.Update(ctx) // immediately again, should be a no-op (interval not elapsed)
	if m.Instances()[0].PollFailures != firstFailures {
		t.Fatal("expected second immediate Update to be a no-op")
	}
	if m.Instances()[0].LastReading.Value != firstValue {
		t.Fatalf("expected no re-read before the interval elapsed, reading changed to %v", m.Instances()[0].LastReading.Value)
	}
}
