// Package module implements the Module Registry & Lifecycle (§4.G):
// manifests describing scheduling tier, dependencies, and configuration
// binding; dependency validation and topological load ordering; and the
// CREATED→CONFIGURED→INITIALIZED→RUNNING/STOPPED lifecycle state
// machine.
package module

import (
	"context"
	"log"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/metrics"
)

// Module is the contract every registered module implements.
type Module interface {
	Configure(ctx context.Context, section map[string]any) error
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Update(ctx context.Context) error
}

// Factory builds a fresh, unconfigured Module instance.
type Factory func() Module

// Manifest is the static description of a module bundled with the
// firmware (§4.G): since this spec's manifests are themselves build-time
// artifacts, a Go struct literal is the idiomatic rendering rather than a
// runtime-parsed file.
type Manifest struct {
	Name                 string
	Version              string
	Type                 domain.ModuleType
	Priority             int
	Dependencies         []string
	UpdateBudget         time.Duration
	ConfigSection        string
	PublishedEvents      []string
	SubscribedEvents     []string
	PublishedStateKeys   []string
	SubscribedStateKeys  []string
	Factory              Factory
}

// Record is a module's manifest, owned instance, and current lifecycle
// state.
type Record struct {
	Manifest  Manifest
	Instance  Module
	State     domain.ModuleState
	LastError error
}

// Registry owns every registered manifest and, once booted, every
// module's live Record.
type Registry struct {
	order     []string
	manifests map[string]Manifest
	records   map[string]*Record
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{manifests: make(map[string]Manifest), records: make(map[string]*Record)}
}

// Register adds a manifest. A second registration of the same name
// replaces the first and logs a warning, matching the driver registry's
// double-registration rule (§4.D, generalized here to manifests).
func (r *Registry) Register(m Manifest) {
	if _, exists := r.manifests[m.Name]; exists {
		log.Printf("[module] manifest %q re-registered, replacing previous manifest", m.Name)
	} else {
		r.order = append(r.order, m.Name)
	}
	r.manifests[m.Name] = m
}

// LoadOrder validates that every declared dependency resolves and the
// dependency graph is acyclic, then returns a topologically sorted load
// order (§4.G).
func (r *Registry) LoadOrder() ([]string, error) {
	for _, m := range r.manifests {
		for _, dep := range m.Dependencies {
			if _, ok := r.manifests[dep]; !ok {
				return nil, domain.Wrap(domain.KindInvalidArgument, "module",
					m.Name+" depends on unknown module "+dep, domain.ErrDependencyUnresolved)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	status := make(map[string]int, len(r.manifests))
	var sorted []string

	var visit func(name string) error
	visit = func(name string) error {
		switch status[name] {
		case visited:
			return nil
		case visiting:
			return domain.Wrap(domain.KindInvalidState, "module", name, domain.ErrDependencyCycle)
		}
		status[name] = visiting
		for _, dep := range r.manifests[name].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		status[name] = visited
		sorted = append(sorted, name)
		return nil
	}

	for _, name := range r.order {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// Boot instantiates every module in dependency order, and drives it
// through Configure → Init → Start. sectionFor resolves a manifest's
// ConfigSection identifier to its configuration document. A failure in
// Configure or Init leaves the module in ERROR and excludes it from the
// active set; boot continues with the remaining modules unless the
// failed module is CRITICAL, in which case boot aborts (§4.G, §7).
func (r *Registry) Boot(ctx context.Context, sectionFor func(section string) map[string]any) error {
	order, err := r.LoadOrder()
	if err != nil {
		return err
	}

	for _, name := range order {
		manifest := r.manifests[name]
		rec := &Record{Manifest: manifest, Instance: manifest.Factory(), State: domain.StateCreated}
		r.records[name] = rec
		metrics.ModuleState.WithLabelValues(name).Set(float64(domain.StateCreated))

		section := sectionFor(manifest.ConfigSection)
		if err := rec.Instance.Configure(ctx, section); err != nil {
			setState(rec, name, domain.StateError, err)
			log.Printf("[module] %q: configure failed: %v", name, err)
			if manifest.Type == domain.ModuleCritical {
				return domain.Wrap(domain.KindFatal, "module", name, domain.ErrCriticalModuleFailed)
			}
			continue
		}
		setState(rec, name, domain.StateConfigured, nil)

		if err := rec.Instance.Init(ctx); err != nil {
			setState(rec, name, domain.StateError, err)
			log.Printf("[module] %q: init failed: %v", name, err)
			if manifest.Type == domain.ModuleCritical {
				return domain.Wrap(domain.KindFatal, "module", name, domain.ErrCriticalModuleFailed)
			}
			continue
		}
		setState(rec, name, domain.StateInitialized, nil)

		if err := rec.Instance.Start(ctx); err != nil {
			setState(rec, name, domain.StateError, err)
			log.Printf("[module] %q: start failed: %v", name, err)
			if manifest.Type == domain.ModuleCritical {
				return domain.Wrap(domain.KindFatal, "module", name, domain.ErrCriticalModuleFailed)
			}
			continue
		}
		setState(rec, name, domain.StateRunning, nil)
	}
	return nil
}

// Shutdown stops every running module in reverse dependency order.
func (r *Registry) Shutdown(ctx context.Context) {
	order, err := r.LoadOrder()
	if err != nil {
		return
	}
	for i := len(order) - 1; i >= 0; i-- {
		rec, ok := r.records[order[i]]
		if !ok || rec.State != domain.StateRunning {
			continue
		}
		if err := rec.Instance.Stop(ctx); err != nil {
			log.Printf("[module] %q: stop failed: %v", order[i], err)
		}
		setState(rec, order[i], domain.StateStopped, nil)
	}
}

// Active returns every RUNNING module's Record, ordered by manifest Type
// (CRITICAL first), then Priority ascending, with ties kept in LoadOrder's
// dependency order, the order the scheduler updates modules in (§4.H
// item 2, §5 ordering guarantee (c)).
func (r *Registry) Active() []*Record {
	order, err := r.LoadOrder()
	if err != nil {
		return nil
	}
	var out []*Record
	for _, name := range order {
		if rec, ok := r.records[name]; ok && rec.State == domain.StateRunning {
			out = append(out, rec)
		}
	}
	sortByTypeThenPriority(out)
	return out
}

// Get returns the Record for name, if booted.
func (r *Registry) Get(name string) (*Record, bool) {
	rec, ok := r.records[name]
	return rec, ok
}

// All returns every booted Record regardless of lifecycle state, the
// enumeration the Heartbeat Monitor walks each tick (§4.I).
func (r *Registry) All() []*Record {
	out := make([]*Record, 0, len(r.records))
	for _, name := range r.order {
		if rec, ok := r.records[name]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// Restart drives a single module through Stop → Init → Start, the
// recovery sequence the Heartbeat Monitor's restart policy invokes on an
// unresponsive module (§4.I). It leaves the module in ERROR on any step
// failure rather than retrying itself; the caller's restart-count cap
// decides whether to try again.
func (r *Registry) Restart(ctx context.Context, name string) error {
	rec, ok := r.records[name]
	if !ok {
		return domain.Wrap(domain.KindNotFound, "module", name, domain.ErrModuleNotFound)
	}
	if err := rec.Instance.Stop(ctx); err != nil {
		log.Printf("[module] %q: restart stop failed: %v", name, err)
	}
	if err := rec.Instance.Init(ctx); err != nil {
		setState(rec, name, domain.StateError, err)
		return err
	}
	if err := rec.Instance.Start(ctx); err != nil {
		setState(rec, name, domain.StateError, err)
		return err
	}
	setState(rec, name, domain.StateRunning, nil)
	return nil
}

// Reset transitions a module in ERROR back to INITIALIZED via the
// reset/restart policy recorded in §4.G's lifecycle diagram, without
// invoking Init again — callers that need a full restart call Init and
// Start themselves using the heartbeat monitor's restart sequence.
func (r *Registry) Reset(name string) error {
	rec, ok := r.records[name]
	if !ok {
		return domain.Wrap(domain.KindNotFound, "module", name, domain.ErrModuleNotFound)
	}
	if !rec.State.CanTransition(domain.StateInitialized) {
		return domain.Wrap(domain.KindInvalidState, "module", name, domain.ErrInvalidTransition)
	}
	setState(rec, name, domain.StateInitialized, nil)
	return nil
}

func setState(rec *Record, name string, s domain.ModuleState, err error) {
	rec.State, rec.LastError = s, err
	metrics.ModuleState.WithLabelValues(name).Set(float64(s))
}

func sortByTypeThenPriority(recs []*Record) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0; j-- {
			a, b := recs[j-1], recs[j]
			if !less(b, a) {
				break
			}
			recs[j-1], recs[j] = recs[j], recs[j-1]
		}
	}
}

func less(a, b *Record) bool {
	if a.Manifest.Type != b.Manifest.Type {
		return a.Manifest.Type < b.Manifest.Type
	}
	return a.Manifest.Priority < b.Manifest.Priority
}
