package driver

import (
	"context"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/hal"
)

// Relay is a protected on/off actuator driver: commands to flip state are
// refused until the minimum dwell time in the current state has elapsed
// (§4.F "Protection timers"), and the last commanded state is remembered
// so the flip can be applied automatically once the window expires.
type Relay struct {
	gpio hal.GpioOutput
	pin  string

	minOn, minOff time.Duration
	inrushDelay   time.Duration
	now           func() time.Time

	current          bool
	commanded        bool
	lastChangeAt     time.Time
	protectionBlocks int
	config           map[string]any
}

// NewRelay builds a factory closure bound to gpio, suitable for
// registration under ActuatorRegistry.Register.
func NewRelay(gpio hal.GpioOutput) ActuatorFactory {
	return func() Actuator { return &Relay{gpio: gpio, now: time.Now} }
}

func (r *Relay) Init(ctx context.Context, config map[string]any) error {
	if r.now == nil {
		r.now = time.Now
	}
	if err := r.SetConfig(config); err != nil {
		return err
	}
	return nil
}

func (r *Relay) SetConfig(config map[string]any) error {
	pin, ok := config["pin"].(string)
	if !ok || pin == "" {
		return domain.NewError(domain.KindInvalidArgument, "relay", "pin is required")
	}
	r.pin = pin
	if v, ok := asFloat(config["min_on_time_s"]); ok {
		r.minOn = time.Duration(v * float64(time.Second))
	}
	if v, ok := asFloat(config["min_off_time_s"]); ok {
		r.minOff = time.Duration(v * float64(time.Second))
	}
	if v, ok := asFloat(config["inrush_delay_ms"]); ok {
		r.inrushDelay = time.Duration(v * float64(time.Millisecond))
	}
	r.config = config
	return nil
}

func (r *Relay) GetConfig() map[string]any {
	cp := make(map[string]any, len(r.config))
	for k, v := range r.config {
		cp[k] = v
	}
	return cp
}

// ExecuteCommand accepts params["state"] as the desired on/off state. If
// the minimum dwell time in the current state has not elapsed, the
// command is refused: protectionBlocks increments, the desired state is
// remembered as commanded, and no hard error is returned.
func (r *Relay) ExecuteCommand(ctx context.Context, command string, params map[string]any) error {
	desired, ok := params["state"].(bool)
	if !ok {
		return domain.NewError(domain.KindInvalidArgument, "relay", "state is required")
	}
	r.commanded = desired
	if r.current == desired {
		return nil
	}
	if r.now().Sub(r.lastChangeAt) < r.dwellFor(r.current) {
		r.protectionBlocks++
		return nil
	}
	return r.apply(ctx, desired)
}

// Update applies a commanded state that was previously blocked by the
// protection window, once that window has now elapsed.
func (r *Relay) Update(ctx context.Context) error {
	if r.current == r.commanded {
		return nil
	}
	if r.now().Sub(r.lastChangeAt) < r.dwellFor(r.current) {
		return nil
	}
	return r.apply(ctx, r.commanded)
}

func (r *Relay) dwellFor(state bool) time.Duration {
	if state {
		return r.minOn
	}
	return r.minOff
}

func (r *Relay) apply(ctx context.Context, state bool) error {
	if err := r.gpio.SetHigh(ctx, r.pin, state); err != nil {
		return err
	}
	r.current = state
	r.commanded = state
	r.lastChangeAt = r.now()
	if state && r.inrushDelay > 0 {
		select {
		case <-time.After(r.inrushDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// EmergencyStop bypasses the protection window for this one transition and
// forces the relay off, without touching the configured dwell intervals:
// the next ordinary command is still subject to min-on/min-off.
func (r *Relay) EmergencyStop(ctx context.Context) error {
	r.commanded = false
	if err := r.gpio.SetHigh(ctx, r.pin, false); err != nil {
		return err
	}
	r.current = false
	r.lastChangeAt = r.now()
	return nil
}

func (r *Relay) GetStatus(ctx context.Context) (domain.ActuatorStatus, error) {
	desc := "OFF"
	if r.current {
		desc = "ON"
	}
	var value float64
	if r.current {
		value = 1
	}
	var lastChangeMs uint64
	if !r.lastChangeAt.IsZero() {
		lastChangeMs = uint64(r.lastChangeAt.UnixMilli())
	}
	return domain.ActuatorStatus{
		IsActive:         r.current,
		CurrentValue:     value,
		StateDescription: desc,
		LastChangeMs:     lastChangeMs,
		IsHealthy:        r.gpio != nil,
	}, nil
}

func (r *Relay) GetType() string        { return "relay" }
func (r *Relay) GetDescription() string { return "Protected on/off relay with min-on/min-off dwell timers" }
func (r *Relay) IsAvailable() bool      { return r.gpio != nil && r.pin != "" }

func (r *Relay) GetUISchema() []UISchemaField {
	return []UISchemaField{
		{Name: "pin", Label: "GPIO pin", Kind: "string"},
		{Name: "min_on_time_s", Label: "Minimum on time (s)", Kind: "number"},
		{Name: "min_off_time_s", Label: "Minimum off time (s)", Kind: "number"},
		{Name: "inrush_delay_ms", Label: "Inrush delay (ms)", Kind: "number"},
	}
}

func (r *Relay) GetDiagnostics() map[string]any {
	return map[string]any{
		"current":           r.current,
		"commanded":         r.commanded,
		"protection_blocks": r.protectionBlocks,
	}
}
