// Package scheduler implements the Cooperative Scheduler (§4.H): a
// single-threaded, fixed-period tick loop that drains the Event Bus,
// updates every active module in priority order under a per-module time
// budget, and tracks CPU load via a ratio-of-busy-time estimator.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/metrics"
	"github.com/Zapadenec1982/ModESP-sub004/internal/module"
)

const (
	defaultTickPeriod      = 10 * time.Millisecond
	defaultBusBudget       = 2 * time.Millisecond
	defaultUpdateBudget    = 5 * time.Millisecond
	cpuLoadEMAAlpha        = 0.3
	unhealthyOverrunStreak = 3
)

// TickReport summarizes one completed tick, primarily for tests and
// diagnostics.
type TickReport struct {
	BusProcessed int
	ModuleErrors map[string]error
	Overran      bool
	CPULoad      float64
}

// Scheduler runs modules from registry in priority order on a fixed
// period, draining b at the start of every tick.
type Scheduler struct {
	registry *module.Registry
	bus      *bus.Bus

	tickPeriod time.Duration
	busBudget  time.Duration

	now   func() time.Time
	sleep func(time.Duration)

	observe func(moduleName string)

	mu             sync.Mutex
	cpuLoadEMA     float64
	cpuLoadSet     bool
	overrunStreak  map[string]int
	totalOverruns  uint64
	running        bool
	stopCh         chan struct{}
}

// New creates a Scheduler with default timing, driving modules from
// registry and draining b each tick.
func New(registry *module.Registry, b *bus.Bus) *Scheduler {
	return &Scheduler{
		registry:      registry,
		bus:           b,
		tickPeriod:    defaultTickPeriod,
		busBudget:     defaultBusBudget,
		now:           time.Now,
		sleep:         time.Sleep,
		overrunStreak: make(map[string]int),
	}
}

// SetObserver registers fn to be called with a module's name each time
// its Update returns without error, the scheduler's side of feeding the
// Heartbeat Monitor's liveness tracking.
func (s *Scheduler) SetObserver(fn func(moduleName string)) {
	s.observe = fn
}

// Configure reads tick_period_ms and bus_budget_ms from the system
// configuration section.
func (s *Scheduler) Configure(section map[string]any) {
	if v, ok := asFloat(section["tick_period_ms"]); ok && v > 0 {
		s.tickPeriod = time.Duration(v * float64(time.Millisecond))
	}
	if v, ok := asFloat(section["bus_budget_ms"]); ok && v > 0 {
		s.busBudget = time.Duration(v * float64(time.Millisecond))
	}
}

// Tick runs exactly one iteration: drain the bus, update every active
// module in priority order, and refresh the CPU load estimate. It does
// not sleep; callers driving a real loop call Tick then sleep themselves
// (see Run), which keeps Tick itself deterministic for tests.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	tickStart := s.now()

	busProcessed := s.bus.Process(int(s.busBudget.Milliseconds()))

	errs := make(map[string]error)
	for _, rec := range s.registry.Active() {
		updateStart := s.now()
		err := rec.Instance.Update(ctx)
		elapsed := s.now().Sub(updateStart)

		budget := rec.Manifest.UpdateBudget
		if budget <= 0 {
			budget = defaultUpdateBudget
		}
		name := rec.Manifest.Name
		metrics.ModuleUpdateSeconds.WithLabelValues(name).Observe(elapsed.Seconds())
		if elapsed > budget {
			log.Printf("[scheduler] module %q exceeded its update budget (%v > %v)", name, elapsed, budget)
			metrics.ModuleOverrunsTotal.WithLabelValues(name).Inc()
			s.mu.Lock()
			s.overrunStreak[name]++
			streak := s.overrunStreak[name]
			s.mu.Unlock()
			if streak >= unhealthyOverrunStreak {
				log.Printf("[scheduler] module %q marked unhealthy after %d consecutive overruns", name, streak)
			}
		} else {
			s.mu.Lock()
			s.overrunStreak[name] = 0
			s.mu.Unlock()
		}
		if err != nil {
			errs[name] = err
			log.Printf("[scheduler] module %q update error: %v", name, err)
		} else if s.observe != nil {
			s.observe(name)
		}
	}

	elapsed := s.now().Sub(tickStart)
	overran := elapsed > s.tickPeriod
	metrics.TicksTotal.Inc()
	if overran {
		s.mu.Lock()
		s.totalOverruns++
		s.mu.Unlock()
		metrics.TickOverrunsTotal.Inc()
	}

	ratio := float64(elapsed) / float64(s.tickPeriod)
	if ratio > 1 {
		ratio = 1
	}
	s.mu.Lock()
	if !s.cpuLoadSet {
		s.cpuLoadEMA = ratio
		s.cpuLoadSet = true
	} else {
		s.cpuLoadEMA = cpuLoadEMAAlpha*ratio + (1-cpuLoadEMAAlpha)*s.cpuLoadEMA
	}
	load := s.cpuLoadEMA
	s.mu.Unlock()
	metrics.CPULoad.Set(load)

	return TickReport{BusProcessed: busProcessed, ModuleErrors: errs, Overran: overran, CPULoad: load}
}

// Run drives Tick on a fixed period until ctx is cancelled or Stop is
// called. A tick that overran its period is never reordered — Run simply
// skips the sleep and proceeds immediately to the next tick (§4.H item 4).
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return domain.ErrSchedulerRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		default:
		}

		tickStart := s.now()
		s.Tick(ctx)
		elapsed := s.now().Sub(tickStart)
		if elapsed < s.tickPeriod {
			s.sleep(s.tickPeriod - elapsed)
		}
	}
}

// Stop signals Run to return after its current tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.stopCh != nil {
		select {
		case <-s.stopCh:
		default:
			close(s.stopCh)
		}
	}
}

// CPULoad returns the current exponentially-smoothed busy/elapsed ratio
// (§4.H). This platform has no idle-task concept to prefer over it, so
// the ratio-of-busy-time estimator is the only implementation (§9,
// recorded in DESIGN.md).
func (s *Scheduler) CPULoad() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpuLoadEMA
}

// TotalOverruns returns the count of ticks whose total work exceeded the
// tick period.
func (s *Scheduler) TotalOverruns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalOverruns
}

// IsModuleUnhealthy reports whether name has exceeded its update budget
// on unhealthyOverrunStreak consecutive ticks.
func (s *Scheduler) IsModuleUnhealthy(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overrunStreak[name] >= unhealthyOverrunStreak
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
