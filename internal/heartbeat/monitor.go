// Package heartbeat implements the Heartbeat Monitor (§4.I): per-module
// liveness tracking against a per-type timeout, and a configurable
// recovery policy (warn, restart, or escalate) with a restart-count cap.
package heartbeat

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

// Policy selects how the monitor reacts to an unresponsive module.
type Policy int

const (
	// PolicyWarn only emits a warning event; the module is left alone.
	PolicyWarn Policy = iota
	// PolicyRestart drives the module through Stop → Init → Start.
	PolicyRestart
	// PolicyEscalate calls the configured escalation callback (typically
	// a full application stop).
	PolicyEscalate
)

const defaultRestartCap = 3

type record struct {
	lastObservation time.Time
	restarts        int
	escalated       bool
}

// Monitor walks every registered module's last-observation timestamp
// against its type's timeout on each Tick, and applies policy to any
// module found unresponsive.
type Monitor struct {
	registry *module.Registry
	bus      *bus.Bus

	policy     Policy
	restartCap int
	escalate   func(moduleName string, reason error)

	now func() time.Time

	mu      sync.Mutex
	records map[string]*record
}

// New creates a Monitor bound to registry and b, observing every module
// currently booted in registry. escalate is invoked (on the calling
// goroutine) whenever a module exceeds its restart cap or the policy is
// PolicyEscalate; a nil escalate is a no-op.
func New(registry *module.Registry, b *bus.Bus, escalate func(moduleName string, reason error)) *Monitor {
	if escalate == nil {
		escalate = func(string, error) {}
	}
	m := &Monitor{
		registry:   registry,
		bus:        b,
		policy:     PolicyRestart,
		restartCap: defaultRestartCap,
		escalate:   escalate,
		now:        time.Now,
		records:    make(map[string]*record),
	}
	for _, rec := range registry.All() {
		m.records[rec.Manifest.Name] = &record{lastObservation: m.now()}
	}
	return m
}

// SetPolicy changes the recovery policy applied to unresponsive modules.
func (m *Monitor) SetPolicy(p Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
}

// SetRestartCap changes the restart-count cap (default 3); exceeding it
// escalates regardless of the configured policy.
func (m *Monitor) SetRestartCap(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.restartCap = n
	}
}

// Observe records that moduleName's update() returned normally just now.
// Safe to call from any context that performs an observation (§5); the
// bounded-wait variant is TryObserve.
func (m *Monitor) Observe(moduleName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[moduleName]
	if !ok {
		rec = &record{}
		m.records[moduleName] = rec
	}
	rec.lastObservation = m.now()
}

// TryObserve is Observe's bounded-wait counterpart for non-critical
// callers (§4.I): it acquires the lock without blocking and reports
// whether the observation was recorded.
func (m *Monitor) TryObserve(moduleName string) bool {
	if !m.mu.TryLock() {
		return false
	}
	defer m.mu.Unlock()
	rec, ok := m.records[moduleName]
	if !ok {
		rec = &record{}
		m.records[moduleName] = rec
	}
	rec.lastObservation = m.now()
	return true
}

// Tick walks every tracked module under the monitor's own mutex and
// applies the recovery policy to any whose last observation exceeds its
// type's timeout.
func (m *Monitor) Tick(ctx context.Context) {
	m.mu.Lock()
	type due struct {
		name    string
		mtype   domain.ModuleType
		elapsed time.Duration
	}
	var unresponsive []due
	now := m.now()
	for _, rec := range m.registry.All() {
		tracked, ok := m.records[rec.Manifest.Name]
		if !ok {
			tracked = &record{lastObservation: now}
			m.records[rec.Manifest.Name] = tracked
		}
		timeout := rec.Manifest.Type.DefaultHeartbeatTimeout()
		elapsed := now.Sub(tracked.lastObservation)
		if elapsed > timeout && !tracked.escalated {
			unresponsive = append(unresponsive, due{name: rec.Manifest.Name, mtype: rec.Manifest.Type, elapsed: elapsed})
		}
	}
	policy := m.policy
	restartCap := m.restartCap
	m.mu.Unlock()

	for _, d := range unresponsive {
		m.handleUnresponsive(ctx, d.name, d.elapsed, policy, restartCap)
	}
}

func (m *Monitor) handleUnresponsive(ctx context.Context, name string, elapsed time.Duration, policy Policy, restartCap int) {
	log.Printf("[heartbeat] module %q unresponsive for %v", name, elapsed)
	_ = m.bus.PublishPriority("system.health_warning", map[string]any{
		"module": name, "elapsed_ms": elapsed.Milliseconds(),
	}, domain.PriorityNormal)

	if policy == PolicyWarn {
		return
	}

	m.mu.Lock()
	rec := m.records[name]
	rec.restarts++
	restarts := rec.restarts
	m.mu.Unlock()

	if policy == PolicyEscalate || restarts > restartCap {
		m.mu.Lock()
		rec.escalated = true
		m.mu.Unlock()
		reason := domain.Wrap(domain.KindFatal, "heartbeat", name, domain.ErrRestartCapExceeded)
		log.Printf("[heartbeat] module %q escalated: %v", name, reason)
		_ = m.bus.PublishPriority("system.fatal", map[string]any{"module": name}, domain.PriorityCritical)
		metrics.ModuleEscalationsTotal.WithLabelValues(name).Inc()
		m.escalate(name, reason)
		return
	}

	metrics.ModuleRestartsTotal.WithLabelValues(name).Inc()
	if err := m.registry.Restart(ctx, name); err != nil {
		log.Printf("[heartbeat] module %q restart failed: %v", name, err)
		return
	}
	m.mu.Lock()
	m.records[name].lastObservation = m.now()
	m.mu.Unlock()
}

// RestartCount returns how many restarts have been attempted for name.
func (m *Monitor) RestartCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[name]; ok {
		return rec.restarts
	}
	return 0
}

// IsEscalated reports whether name has been escalated and will no
// longer be restarted automatically.
func (m *Monitor) IsEscalated(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[name]; ok {
		return rec.escalated
	}
	return false
}
