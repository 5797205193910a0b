package hal

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// ThermalZone is a first-order thermal model: the zone's temperature
// exponentially approaches either its ambient (compressor off) or a cold
// target (compressor on), driven by whichever GPIO pin is wired as its
// compressor.
type ThermalZone struct {
	TempC         float64
	AmbientC      float64
	ColdTargetC   float64
	TimeConstantS float64 // seconds to close ~63% of the remaining gap
	CompressorPin string
}

// SimEnvironment is an in-memory stand-in for real I/O, driving
// ThermalZones forward as Step is called. It implements OneWireBus,
// GpioOutput, and PwmOutput so a single instance can back a fully
// simulated sensor+actuator pair in tests.
type SimEnvironment struct {
	mu     sync.Mutex
	zones  map[string]*ThermalZone
	gpio   map[string]bool
	pwm    map[string]float64
	adc    map[string]float64
}

// NewSimEnvironment creates an empty simulated environment.
func NewSimEnvironment() *SimEnvironment {
	return &SimEnvironment{
		zones: make(map[string]*ThermalZone),
		gpio:  make(map[string]bool),
		pwm:   make(map[string]float64),
		adc:   make(map[string]float64),
	}
}

// AddZone registers a thermal zone under addr for ReadTemperatureC.
func (e *SimEnvironment) AddZone(addr string, zone *ThermalZone) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.zones[addr] = zone
}

// SetAdc seeds the value an AdcChannel read of channel will return.
func (e *SimEnvironment) SetAdc(channel string, volts float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adc[channel] = volts
}

// Step advances every registered zone's temperature by dt.
func (e *SimEnvironment) Step(dt time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seconds := dt.Seconds()
	for _, z := range e.zones {
		target := z.AmbientC
		if z.CompressorPin != "" && e.gpio[z.CompressorPin] {
			target = z.ColdTargetC
		}
		if z.TimeConstantS <= 0 {
			z.TempC = target
			continue
		}
		alpha := 1 - math.Exp(-seconds/z.TimeConstantS)
		z.TempC += (target - z.TempC) * alpha
	}
}

func (e *SimEnvironment) ReadTemperatureC(ctx context.Context, addr string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	z, ok := e.zones[addr]
	if !ok {
		return 0, fmt.Errorf("hal: unknown one-wire address %q", addr)
	}
	return z.TempC, nil
}

func (e *SimEnvironment) SetHigh(ctx context.Context, pin string, high bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gpio[pin] = high
	return nil
}

func (e *SimEnvironment) IsHigh(ctx context.Context, pin string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gpio[pin], nil
}

func (e *SimEnvironment) SetDuty(ctx context.Context, pin string, duty float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pwm[pin] = duty
	return nil
}

func (e *SimEnvironment) Duty(ctx context.Context, pin string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pwm[pin], nil
}

func (e *SimEnvironment) ReadVolts(ctx context.Context, channel string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adc[channel], nil
}
