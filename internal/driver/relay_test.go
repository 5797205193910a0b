package driver

import (
	"context"
	"testing"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/hal"
)

func newTestRelay(t *testing.T, minOnS float64) (*Relay, *hal.SimEnvironment, *fakeClock) {
	t.Helper()
	env := hal.NewSimEnvironment()
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := &Relay{gpio: env, now: clock.Now}
	if err := r.Init(context.Background(), map[string]any{
		"pin": "relay1", "min_on_time_s": minOnS, "min_off_time_s": 5.0,
	}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r, env, clock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRelayProtectionBlocksEarlyOff(t *testing.T) {
	r, _, clock := newTestRelay(t, 5.0)
	ctx := context.Background()

	if err := r.ExecuteCommand(ctx, "set", map[string]any{"state": true}); err != nil {
		t.Fatalf("turn on: %v", err)
	}
	status, _ := r.GetStatus(ctx)
	if status.StateDescription != "ON" {
		t.Fatalf("expected ON immediately after turn-on, got %v", status.StateDescription)
	}

	clock.Advance(2 * time.Second)
	if err := r.ExecuteCommand(ctx, "set", map[string]any{"state": false}); err != nil {
		t.Fatalf("turn off: %v", err)
	}
	status, _ = r.GetStatus(ctx)
	if status.StateDescription != "ON" {
		t.Fatalf("expected still ON at t=2s, got %v", status.StateDescription)
	}
	diag := r.GetDiagnostics()
	if diag["protection_blocks"] != 1 {
		t.Fatalf("protection_blocks = %v, want 1", diag["protection_blocks"])
	}

	clock.Advance(3100 * time.Millisecond) // now t=5.1s
	if err := r.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	status, _ = r.GetStatus(ctx)
	if status.StateDescription != "OFF" {
		t.Fatalf("expected OFF at t=5.1s, got %v", status.StateDescription)
	}
}

func TestRelayEmergencyStopBypassesProtection(t *testing.T) {
	r, _, _ := newTestRelay(t, 30)
	ctx := context.Background()
	_ = r.ExecuteCommand(ctx, "set", map[string]any{"state": true})

	if err := r.EmergencyStop(ctx); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}
	status, _ := r.GetStatus(ctx)
	if status.IsActive {
		t.Fatal("expected inactive after emergency stop")
	}

	// The configured min-off dwell must still apply to the next ordinary
	// command; EmergencyStop bypasses the window once, not permanently.
	if err := r.ExecuteCommand(ctx, "set", map[string]any{"state": true}); err != nil {
		t.Fatalf("turn on after emergency stop: %v", err)
	}
	status, _ = r.GetStatus(ctx)
	if status.IsActive {
		t.Fatal("expected min-off dwell to still block turning on right after EmergencyStop")
	}
	diag := r.GetDiagnostics()
	if diag["protection_blocks"] != 1 {
		t.Fatalf("protection_blocks = %v, want 1", diag["protection_blocks"])
	}
}

func TestRelayInrushDelay(t *testing.T) {
	env := hal.NewSimEnvironment()
	r := &Relay{gpio: env, now: time.Now}
	_ = r.Init(context.Background(), map[string]any{
		"pin": "relay1", "inrush_delay_ms": 20.0,
	})
	start := time.Now()
	_ = r.ExecuteCommand(context.Background(), "set", map[string]any{"state": true})
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("expected ExecuteCommand to block for the inrush delay")
	}
}
