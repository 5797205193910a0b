package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/module"
)

// clockModule advances a shared fake clock by step each Update, letting
// tests simulate a module that overruns its budget without sleeping for
// real.
type clockModule struct {
	clock   *fakeClock
	step    time.Duration
	updated int
}

func (m *clockModule) Configure(context.Context, map[string]any) error { return nil }
func (m *clockModule) Init(context.Context) error                      { return nil }
func (m *clockModule) Start(context.Context) error                     { return nil }
func (m *clockModule) Stop(context.Context) error                      { return nil }
func (m *clockModule) Update(context.Context) error {
	m.updated++
	m.clock.advance(m.step)
	return nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time     { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newBootedRegistry(t *testing.T, modules map[string]module.Module, budgets map[string]time.Duration) *module.Registry {
	t.Helper()
	reg := module.NewRegistry()
	for name, m := range modules {
		inst := m
		reg.Register(module.Manifest{
			Name:         name,
			Type:         domain.ModuleStandard,
			UpdateBudget: budgets[name],
			Factory:      func() module.Module { return inst },
		})
	}
	if err := reg.Boot(context.Background(), func(string) map[string]any { return nil }); err != nil {
		t.Fatalf("boot: %v", err)
	}
	return reg
}

func TestTickReportsExactlyOneOverrun(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	slow := &clockModule{clock: clock, step: 20 * time.Millisecond}
	fast1 := &clockModule{clock: clock, step: time.Millisecond}
	fast2 := &clockModule{clock: clock, step: time.Millisecond}

	reg := newBootedRegistry(t,
		map[string]module.Module{"slow": slow, "fast1": fast1, "fast2": fast2},
		map[string]time.Duration{"slow": 5 * time.Millisecond, "fast1": 5 * time.Millisecond, "fast2": 5 * time.Millisecond},
	)

	b := bus.New()
	b.Init(16)
	s := New(reg, b)
	s.now = clock.now

	report := s.Tick(context.Background())

	if slow.updated != 1 || fast1.updated != 1 || fast2.updated != 1 {
		t.Fatalf("expected every module updated once, got slow=%d fast1=%d fast2=%d", slow.updated, fast1.updated, fast2.updated)
	}
	if s.IsModuleUnhealthy("slow") {
		t.Fatal("a single overrun must not yet mark the module unhealthy")
	}
	if s.overrunStreak["slow"] != 1 {
		t.Fatalf("expected exactly one overrun recorded for slow module, got %d", s.overrunStreak["slow"])
	}
	if s.overrunStreak["fast1"] != 0 || s.overrunStreak["fast2"] != 0 {
		t.Fatal("expected no overruns recorded for modules within budget")
	}
	if !report.Overran {
		t.Fatal("expected the tick itself to be reported as overrun given the slow module")
	}
}

func TestModuleMarkedUnhealthyAfterRepeatedOverruns(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	slow := &clockModule{clock: clock, step: 20 * time.Millisecond}
	reg := newBootedRegistry(t, map[string]module.Module{"slow": slow}, map[string]time.Duration{"slow": 5 * time.Millisecond})

	b := bus.New()
	b.Init(16)
	s := New(reg, b)
	s.now = clock.now

	for i := 0; i < unhealthyOverrunStreak; i++ {
		s.Tick(context.Background())
	}
	if !s.IsModuleUnhealthy("slow") {
		t.Fatal("expected module to be marked unhealthy after repeated overruns")
	}
}

func TestOverrunStreakResetsOnHealthyTick(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := &clockModule{clock: clock, step: 20 * time.Millisecond}
	reg := newBootedRegistry(t, map[string]module.Module{"m": m}, map[string]time.Duration{"m": 5 * time.Millisecond})

	b := bus.New()
	b.Init(16)
	s := New(reg, b)
	s.now = clock.now

	s.Tick(context.Background())
	if s.overrunStreak["m"] != 1 {
		t.Fatalf("expected one overrun, got %d", s.overrunStreak["m"])
	}

	m.step = time.Millisecond
	s.Tick(context.Background())
	if s.overrunStreak["m"] != 0 {
		t.Fatalf("expected overrun streak reset after a healthy tick, got %d", s.overrunStreak["m"])
	}
}

func TestCPULoadEMASmoothsTowardBusyRatio(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := &clockModule{clock: clock, step: 10 * time.Millisecond}
	reg := newBootedRegistry(t, map[string]module.Module{"m": m}, map[string]time.Duration{"m": 50 * time.Millisecond})

	b := bus.New()
	b.Init(16)
	s := New(reg, b)
	s.now = clock.now
	s.tickPeriod = 10 * time.Millisecond

	first := s.Tick(context.Background()).CPULoad
	if first <= 0.9 {
		t.Fatalf("expected first sample to seed the EMA at the observed ratio, got %v", first)
	}

	m.step = 0
	second := s.Tick(context.Background()).CPULoad
	if second >= first {
		t.Fatalf("expected EMA to decay toward a near-zero sample, got first=%v second=%v", first, second)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	reg := module.NewRegistry()
	if err := reg.Boot(context.Background(), func(string) map[string]any { return nil }); err != nil {
		t.Fatalf("boot: %v", err)
	}
	b := bus.New()
	b.Init(16)
	s := New(reg, b)
	s.sleep = func(time.Duration) {}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
