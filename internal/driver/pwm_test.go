package driver

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/hal"
)

func TestPWMAppliesImmediatelyWithoutRamp(t *testing.T) {
	env := hal.NewSimEnvironment()
	p := &PWM{out: env, now: time.Now, gamma: 1.0, maxDuty: 100}
	ctx := context.Background()
	_ = p.Init(ctx, map[string]any{"pin": "pwm1"})

	if err := p.ExecuteCommand(ctx, "set", map[string]any{"duty": 50.0}); err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	duty, _ := env.Duty(ctx, "pwm1")
	if math.Abs(duty-0.5) > 0.001 {
		t.Fatalf("hardware duty = %v, want 0.5", duty)
	}
}

func TestPWMClampsToConfiguredRange(t *testing.T) {
	env := hal.NewSimEnvironment()
	p := &PWM{out: env, now: time.Now}
	ctx := context.Background()
	_ = p.Init(ctx, map[string]any{"pin": "pwm1", "min_duty_percent": 10.0, "max_duty_percent": 80.0})

	_ = p.ExecuteCommand(ctx, "set", map[string]any{"duty": 200.0})
	status, _ := p.GetStatus(ctx)
	if status.CurrentValue != 80 {
		t.Fatalf("current = %v, want clamped to 80", status.CurrentValue)
	}
}

func TestPWMRampsOverTime(t *testing.T) {
	env := hal.NewSimEnvironment()
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := &PWM{out: env, now: clock.Now}
	ctx := context.Background()
	_ = p.Init(ctx, map[string]any{"pin": "pwm1", "ramp_time_ms": 1000.0})

	if err := p.ExecuteCommand(ctx, "set", map[string]any{"duty": 100.0}); err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if p.current != 0 {
		t.Fatalf("duty should not jump immediately when ramping, got %v", p.current)
	}

	clock.Advance(500 * time.Millisecond)
	if err := p.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if math.Abs(p.current-50) > 1 {
		t.Fatalf("duty at half ramp = %v, want ~50", p.current)
	}

	clock.Advance(600 * time.Millisecond)
	_ = p.Update(ctx)
	if p.current != 100 {
		t.Fatalf("duty after ramp completes = %v, want 100", p.current)
	}
}

func TestPWMEmergencyStop(t *testing.T) {
	env := hal.NewSimEnvironment()
	p := &PWM{out: env, now: time.Now}
	ctx := context.Background()
	_ = p.Init(ctx, map[string]any{"pin": "pwm1"})
	_ = p.ExecuteCommand(ctx, "set", map[string]any{"duty": 75.0})

	if err := p.EmergencyStop(ctx); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}
	status, _ := p.GetStatus(ctx)
	if status.CurrentValue != 0 {
		t.Fatalf("current = %v, want 0 after emergency stop", status.CurrentValue)
	}
}
