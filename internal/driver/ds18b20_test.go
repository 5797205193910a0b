package driver

import (
	"context"
	"testing"

	"github.com/Zapadenec1982/ModESP-sub004/internal/hal"
)

func TestDS18B20ReadsZoneTemperature(t *testing.T) {
	env := hal.NewSimEnvironment()
	env.AddZone("28-01", &hal.ThermalZone{TempC: -18, AmbientC: 25})
	d := &DS18B20{}
	ctx := context.Background()

	if err := d.Init(ctx, map[string]any{"bus_addr": "28-01"}); err != nil {
		t.Fatalf("Init without bus should still accept config: unexpected %v", err)
	}
	d.bus = env

	reading, err := d.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reading.IsValid || reading.Value != -18 {
		t.Fatalf("reading = %+v, want valid -18", reading)
	}
}

func TestDS18B20RequiresBusAddr(t *testing.T) {
	d := &DS18B20{}
	if err := d.Init(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error for missing bus_addr")
	}
}

func TestDS18B20Calibrate(t *testing.T) {
	env := hal.NewSimEnvironment()
	env.AddZone("28-02", &hal.ThermalZone{TempC: 10})
	d := &DS18B20{bus: env}
	_ = d.Init(context.Background(), map[string]any{"bus_addr": "28-02"})

	if err := d.Calibrate(context.Background(), map[string]any{"reference_c": 12.0}); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	reading, _ := d.Read(context.Background())
	if reading.Value != 12.0 {
		t.Fatalf("reading after calibration = %v, want 12.0", reading.Value)
	}
}
