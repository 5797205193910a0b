package hal

import (
	"context"
	"testing"
	"time"
)

func TestThermalZoneCoolsWhenCompressorOn(t *testing.T) {
	env := NewSimEnvironment()
	env.AddZone("28-000001", &ThermalZone{
		TempC: 10, AmbientC: 25, ColdTargetC: -20,
		TimeConstantS: 60, CompressorPin: "relay1",
	})
	ctx := context.Background()

	if err := env.SetHigh(ctx, "relay1", true); err != nil {
		t.Fatalf("SetHigh: %v", err)
	}
	env.Step(60 * time.Second)

	v, err := env.ReadTemperatureC(ctx, "28-000001")
	if err != nil {
		t.Fatalf("ReadTemperatureC: %v", err)
	}
	if v >= 10 {
		t.Fatalf("temp did not drop while compressor ran: %v", v)
	}
}

func TestThermalZoneWarmsWhenCompressorOff(t *testing.T) {
	env := NewSimEnvironment()
	env.AddZone("28-000002", &ThermalZone{
		TempC: -20, AmbientC: 25, ColdTargetC: -20,
		TimeConstantS: 60, CompressorPin: "relay1",
	})
	ctx := context.Background()
	env.Step(120 * time.Second)

	v, _ := env.ReadTemperatureC(ctx, "28-000002")
	if v <= -20 {
		t.Fatalf("temp did not rise toward ambient: %v", v)
	}
}

func TestReadUnknownAddrErrors(t *testing.T) {
	env := NewSimEnvironment()
	if _, err := env.ReadTemperatureC(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown address")
	}
}

func TestGpioAndPwmRoundTrip(t *testing.T) {
	env := NewSimEnvironment()
	ctx := context.Background()

	_ = env.SetHigh(ctx, "relay1", true)
	high, _ := env.IsHigh(ctx, "relay1")
	if !high {
		t.Fatal("expected relay1 high")
	}

	_ = env.SetDuty(ctx, "pwm1", 0.42)
	duty, _ := env.Duty(ctx, "pwm1")
	if duty != 0.42 {
		t.Fatalf("duty = %v, want 0.42", duty)
	}
}
