package health

import (
	"context"
	"testing"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/config"
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/module"
	"github.com/Zapadenec1982/ModESP-sub004/internal/scheduler"
)

type okModule struct{}

func (okModule) Configure(context.Context, map[string]any) error { return nil }
func (okModule) Init(context.Context) error                      { return nil }
func (okModule) Start(context.Context) error                     { return nil }
func (okModule) Stop(context.Context) error                      { return nil }
func (okModule) Update(context.Context) error                    { return nil }

func bootedRegistry(t *testing.T, mtype domain.ModuleType) *module.Registry {
	t.Helper()
	reg := module.NewRegistry()
	reg.Register(module.Manifest{Name: "m", Type: mtype, Factory: func() module.Module { return okModule{} }})
	if err := reg.Boot(context.Background(), func(string) map[string]any { return nil }); err != nil {
		t.Fatalf("boot: %v", err)
	}
	return reg
}

func newTestStore(t *testing.T) *config.Store {
	t.Helper()
	store, err := config.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewCheckerHasStandardChecks(t *testing.T) {
	reg := bootedRegistry(t, domain.ModuleCritical)
	b := bus.New()
	b.Init(16)
	sched := scheduler.New(reg, b)
	store := newTestStore(t)

	c := NewChecker(reg, sched, store)
	if len(c.checks) != 3 {
		t.Fatalf("checks = %d, want 3", len(c.checks))
	}
}

func TestCheckerHealthyWhenCriticalModuleRunning(t *testing.T) {
	reg := bootedRegistry(t, domain.ModuleCritical)
	b := bus.New()
	b.Init(16)
	sched := scheduler.New(reg, b)
	store := newTestStore(t)

	c := NewChecker(reg, sched, store)
	c.runAll(context.Background())

	if !c.IsHealthy() {
		for _, s := range c.Statuses() {
			if !s.Healthy {
				t.Errorf("check %q failed: %s", s.Name, s.Error)
			}
		}
	}
}

func TestCheckerUnhealthyWhenCriticalModuleNotRunning(t *testing.T) {
	reg := module.NewRegistry()
	reg.Register(module.Manifest{Name: "m", Type: domain.ModuleCritical, Factory: func() module.Module {
		return okModule{}
	}})
	// never booted: stays absent from the registry's records, leaving
	// critical_modules vacuously healthy, so boot it then force it down
	// via Shutdown to exercise the failing path.
	if err := reg.Boot(context.Background(), func(string) map[string]any { return nil }); err != nil {
		t.Fatalf("boot: %v", err)
	}
	reg.Shutdown(context.Background())

	b := bus.New()
	b.Init(16)
	sched := scheduler.New(reg, b)
	store := newTestStore(t)

	c := NewChecker(reg, sched, store)
	c.runAll(context.Background())

	for _, s := range c.Statuses() {
		if s.Name == "critical_modules" && s.Healthy {
			t.Error("expected critical_modules check to fail once the module is stopped")
		}
	}
}

func TestCheckerIsHealthyBeforeFirstRun(t *testing.T) {
	reg := bootedRegistry(t, domain.ModuleStandard)
	b := bus.New()
	b.Init(16)
	sched := scheduler.New(reg, b)
	store := newTestStore(t)

	c := NewChecker(reg, sched, store)
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before the first run")
	}
}

func TestCheckerStatusesIsACopy(t *testing.T) {
	reg := bootedRegistry(t, domain.ModuleStandard)
	b := bus.New()
	b.Init(16)
	sched := scheduler.New(reg, b)
	store := newTestStore(t)

	c := NewChecker(reg, sched, store)
	c.runAll(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()
	if len(s1) == 0 {
		t.Fatal("expected at least one status")
	}
	s1[0].Healthy = !s1[0].Healthy
	if s1[0].Healthy == s2[0].Healthy {
		t.Error("Statuses() should return a copy, not a shared slice")
	}
}

func TestCheckerCustomCheck(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{Name: "always_pass", CheckFn: func(context.Context) error { return nil }},
		},
	}
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 1 || !statuses[0].Healthy {
		t.Fatal("expected one healthy status")
	}
}

func TestCheckerRunStopsOnContextCancel(t *testing.T) {
	c := &Checker{
		interval: time.Millisecond,
		checks: []Check{
			{Name: "noop", CheckFn: func(context.Context) error { return nil }},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
