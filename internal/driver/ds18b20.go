package driver

import (
	"context"
	"fmt"

	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/hal"
)

// DS18B20 is a simulated one-wire thermal sensor driver. Configuration
// carries a "bus_addr" string identifying the device on the wire.
type DS18B20 struct {
	bus  hal.OneWireBus
	addr string

	config map[string]any
	calOffset float64
}

// NewDS18B20 builds a factory closure bound to bus, suitable for
// registration under SensorRegistry.Register.
func NewDS18B20(bus hal.OneWireBus) SensorFactory {
	return func() Sensor { return &DS18B20{bus: bus} }
}

func (d *DS18B20) Init(ctx context.Context, config map[string]any) error {
	return d.SetConfig(config)
}

func (d *DS18B20) Read(ctx context.Context) (domain.SensorReading, error) {
	if d.bus == nil || d.addr == "" {
		return domain.SensorReading{}, domain.NewError(domain.KindInvalidState, "ds18b20", "not configured")
	}
	raw, err := d.bus.ReadTemperatureC(ctx, d.addr)
	if err != nil {
		return domain.SensorReading{
			IsValid:      false,
			ErrorMessage: err.Error(),
			TimestampMs:  domain.NowMs(),
		}, err
	}
	return domain.SensorReading{
		Value:       raw + d.calOffset,
		Unit:        "C",
		TimestampMs: domain.NowMs(),
		IsValid:     true,
	}, nil
}

func (d *DS18B20) Update(ctx context.Context) error { return nil }

func (d *DS18B20) GetType() string        { return "ds18b20" }
func (d *DS18B20) GetDescription() string { return "Simulated DS18B20 one-wire thermal sensor" }
func (d *DS18B20) IsAvailable() bool      { return d.bus != nil && d.addr != "" }

func (d *DS18B20) GetConfig() map[string]any {
	cp := make(map[string]any, len(d.config))
	for k, v := range d.config {
		cp[k] = v
	}
	return cp
}

func (d *DS18B20) SetConfig(config map[string]any) error {
	addr, ok := config["bus_addr"].(string)
	if !ok || addr == "" {
		return domain.NewError(domain.KindInvalidArgument, "ds18b20", "bus_addr is required")
	}
	d.addr = addr
	if off, ok := asFloat(config["calibration_offset_c"]); ok {
		d.calOffset = off
	}
	d.config = config
	return nil
}

func (d *DS18B20) GetUISchema() []UISchemaField {
	return []UISchemaField{
		{Name: "bus_addr", Label: "1-Wire address", Kind: "string"},
		{Name: "calibration_offset_c", Label: "Calibration offset (C)", Kind: "number"},
	}
}

func (d *DS18B20) GetDiagnostics() map[string]any {
	return map[string]any{
		"bus_addr":      d.addr,
		"cal_offset_c":  d.calOffset,
		"is_available":  d.IsAvailable(),
	}
}

func (d *DS18B20) Calibrate(ctx context.Context, params map[string]any) error {
	ref, ok := asFloat(params["reference_c"])
	if !ok {
		return domain.NewError(domain.KindInvalidArgument, "ds18b20", "reference_c is required")
	}
	reading, err := d.Read(ctx)
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	d.calOffset = ref - (reading.Value - d.calOffset)
	return nil
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
