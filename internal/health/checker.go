// Package health runs periodic, named health checks against the running
// system and exposes their latest results for the diagnostics server.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/config"
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/module"
	"github.com/Zapadenec1982/ModESP-sub004/internal/scheduler"
)

const defaultCheckInterval = 10 * time.Second

// maxCPULoad and maxPendingSections are the thresholds the standard
// checks flag as unhealthy.
const (
	maxCPULoad         = 0.95
	maxPendingSections = 16
)

// Check defines a single health check with an optional recovery action
// attempted when CheckFn fails.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status is the latest result of one Check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs its checks on a fixed interval and serves the latest
// snapshot to callers (typically the diagnostics server's /healthz).
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker builds the standard set of checks: every CRITICAL module is
// RUNNING, the scheduler's CPU load is at most maxCPULoad, and the config
// store has at most maxPendingSections sections awaiting persistence.
// The config_store check's recovery action forces a synchronous flush of
// every pending section rather than waiting for the async worker.
func NewChecker(registry *module.Registry, sched *scheduler.Scheduler, store *config.Store) *Checker {
	return &Checker{
		interval: defaultCheckInterval,
		checks: []Check{
			{
				Name:    "critical_modules",
				CheckFn: checkCriticalModules(registry),
			},
			{
				Name:    "scheduler_load",
				CheckFn: checkSchedulerLoad(sched),
			},
			{
				Name:      "config_store",
				CheckFn:   checkConfigStore(store),
				RecoverFn: flushConfigStore(store),
			},
		},
	}
}

func checkCriticalModules(registry *module.Registry) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, rec := range registry.All() {
			if rec.Manifest.Type == domain.ModuleCritical && rec.State != domain.StateRunning {
				return fmt.Errorf("critical module %q is %s", rec.Manifest.Name, rec.State)
			}
		}
		return nil
	}
}

func checkSchedulerLoad(sched *scheduler.Scheduler) func(context.Context) error {
	return func(ctx context.Context) error {
		if load := sched.CPULoad(); load > maxCPULoad {
			return fmt.Errorf("cpu load %.2f exceeds %.2f", load, maxCPULoad)
		}
		return nil
	}
}

func checkConfigStore(store *config.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		if n := store.PendingCount(); n > maxPendingSections {
			return fmt.Errorf("%d sections pending persistence, exceeds %d", n, maxPendingSections)
		}
		return nil
	}
}

func flushConfigStore(store *config.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		return store.SaveAll()
	}
}

// RunOnce executes every check synchronously and updates the snapshot
// returned by Statuses, without starting the periodic loop.
func (c *Checker) RunOnce(ctx context.Context) {
	c.runAll(ctx)
}

// Run starts the health check loop; call it in a goroutine. It returns
// once ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			if check.RecoverFn != nil {
				_ = check.RecoverFn(ctx)
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns a copy of the latest check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy reports whether every check last passed. Vacuously true
// before the first run.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
