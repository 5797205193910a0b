package driver

import (
	"context"
	"math"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/hal"
)

const rampEpsilon = 0.01

// PWM is a ramped, gamma-corrected duty-cycle actuator driver (§4.F "PWM
// driver"). Duty is tracked as a percentage in [0,100] internally;
// hardware receives duty/100 after gamma correction.
type PWM struct {
	out hal.PwmOutput
	pin string
	now func() time.Time

	minDuty, maxDuty float64
	gamma            float64
	rampTime         time.Duration

	current, target float64
	rampStartValue  float64
	rampStartAt     time.Time
	config          map[string]any
}

// NewPWM builds a factory closure bound to out, suitable for registration
// under ActuatorRegistry.Register.
func NewPWM(out hal.PwmOutput) ActuatorFactory {
	return func() Actuator { return &PWM{out: out, now: time.Now, gamma: 1.0, maxDuty: 100} }
}

func (p *PWM) Init(ctx context.Context, config map[string]any) error {
	if p.now == nil {
		p.now = time.Now
	}
	if p.gamma == 0 {
		p.gamma = 1.0
	}
	return p.SetConfig(config)
}

func (p *PWM) SetConfig(config map[string]any) error {
	pin, ok := config["pin"].(string)
	if !ok || pin == "" {
		return domain.NewError(domain.KindInvalidArgument, "pwm", "pin is required")
	}
	p.pin = pin
	p.minDuty, p.maxDuty = 0, 100
	if v, ok := asFloat(config["min_duty_percent"]); ok {
		p.minDuty = v
	}
	if v, ok := asFloat(config["max_duty_percent"]); ok {
		p.maxDuty = v
	}
	p.gamma = 1.0
	if v, ok := asFloat(config["gamma"]); ok && v > 0 {
		p.gamma = v
	}
	if v, ok := asFloat(config["ramp_time_ms"]); ok {
		p.rampTime = time.Duration(v * float64(time.Millisecond))
	}
	p.config = config
	return nil
}

func (p *PWM) GetConfig() map[string]any {
	cp := make(map[string]any, len(p.config))
	for k, v := range p.config {
		cp[k] = v
	}
	return cp
}

// ExecuteCommand accepts either params["duty"] or a bare numeric duty in
// params["value"], both in [0,100], clamped to [min_duty_percent,
// max_duty_percent]. If ramp_time_ms > 0 and the change exceeds
// rampEpsilon, the move is staged for Update to advance linearly;
// otherwise it applies immediately.
func (p *PWM) ExecuteCommand(ctx context.Context, command string, params map[string]any) error {
	duty, ok := asFloat(params["duty"])
	if !ok {
		duty, ok = asFloat(params["value"])
	}
	if !ok {
		return domain.NewError(domain.KindInvalidArgument, "pwm", "duty is required")
	}
	duty = clamp(duty, p.minDuty, p.maxDuty)

	if p.rampTime <= 0 || math.Abs(duty-p.current) <= rampEpsilon {
		p.target = duty
		return p.applyImmediate(ctx, duty)
	}
	p.target = duty
	p.rampStartValue = p.current
	p.rampStartAt = p.now()
	return nil
}

// Update advances an in-progress ramp. No-op once the target is reached.
func (p *PWM) Update(ctx context.Context) error {
	if math.Abs(p.target-p.current) <= rampEpsilon {
		return nil
	}
	elapsed := p.now().Sub(p.rampStartAt)
	frac := float64(elapsed) / float64(p.rampTime)
	if frac >= 1 {
		return p.applyImmediate(ctx, p.target)
	}
	duty := p.rampStartValue + (p.target-p.rampStartValue)*frac
	return p.applyImmediate(ctx, duty)
}

func (p *PWM) applyImmediate(ctx context.Context, duty float64) error {
	corrected := math.Pow(duty/100, p.gamma)
	if err := p.out.SetDuty(ctx, p.pin, corrected); err != nil {
		return err
	}
	p.current = duty
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EmergencyStop drives duty to zero immediately, bypassing any ramp.
func (p *PWM) EmergencyStop(ctx context.Context) error {
	p.target = 0
	return p.applyImmediate(ctx, 0)
}

func (p *PWM) GetStatus(ctx context.Context) (domain.ActuatorStatus, error) {
	return domain.ActuatorStatus{
		IsActive:         p.current > rampEpsilon,
		CurrentValue:     p.current,
		StateDescription: "duty",
		IsHealthy:        p.out != nil,
	}, nil
}

func (p *PWM) GetType() string        { return "pwm" }
func (p *PWM) GetDescription() string { return "Ramped, gamma-corrected PWM duty-cycle actuator" }
func (p *PWM) IsAvailable() bool      { return p.out != nil && p.pin != "" }

func (p *PWM) GetUISchema() []UISchemaField {
	return []UISchemaField{
		{Name: "pin", Label: "PWM pin", Kind: "string"},
		{Name: "min_duty_percent", Label: "Minimum duty (%)", Kind: "number"},
		{Name: "max_duty_percent", Label: "Maximum duty (%)", Kind: "number"},
		{Name: "gamma", Label: "Gamma correction", Kind: "number"},
		{Name: "ramp_time_ms", Label: "Ramp time (ms)", Kind: "number"},
	}
}

func (p *PWM) GetDiagnostics() map[string]any {
	return map[string]any{
		"current_duty": p.current,
		"target_duty":  p.target,
	}
}
