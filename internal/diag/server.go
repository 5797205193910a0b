// Package diag provides the diagnostics HTTP server: liveness, Prometheus
// metrics, and read-only introspection of running system state.
package diag

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/health"
	"github.com/Zapadenec1982/ModESP-sub004/internal/module"
	"github.com/Zapadenec1982/ModESP-sub004/internal/scheduler"
	"github.com/Zapadenec1982/ModESP-sub004/internal/state"
)

// Server is the diagnostics HTTP server exposing /healthz, /metrics, and
// the /debug/* introspection routes.
type Server struct {
	registry *module.Registry
	sched    *scheduler.Scheduler
	bus      *bus.Bus
	store    *state.Store
	checker  *health.Checker
}

// New creates a Server bound to the running system's components.
func New(registry *module.Registry, sched *scheduler.Scheduler, b *bus.Bus, store *state.Store, checker *health.Checker) *Server {
	return &Server{registry: registry, sched: sched, bus: b, store: store, checker: checker}
}

// Handler returns the chi router with every diagnostics route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/debug", func(r chi.Router) {
		r.Get("/modules", s.handleDebugModules)
		r.Get("/state", s.handleDebugState)
		r.Get("/bus", s.handleDebugBus)
		r.Get("/scheduler", s.handleDebugScheduler)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	statuses := s.checker.Statuses()
	status := http.StatusOK
	if !s.checker.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": s.checker.IsHealthy(),
		"checks":  statuses,
	})
}

type moduleDebug struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	State    string `json:"state"`
	LastErr  string `json:"last_error,omitempty"`
	Priority int    `json:"priority"`
}

func (s *Server) handleDebugModules(w http.ResponseWriter, r *http.Request) {
	var out []moduleDebug
	for _, rec := range s.registry.All() {
		d := moduleDebug{
			Name:     rec.Manifest.Name,
			Type:     rec.Manifest.Type.String(),
			State:    rec.State.String(),
			Priority: rec.Manifest.Priority,
		}
		if rec.LastError != nil {
			d.LastErr = rec.LastError.Error()
		}
		out = append(out, d)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDebugState(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}
	out := make(map[string]any)
	for _, key := range s.store.Keys(pattern) {
		entry, ok := s.store.Get(key)
		if !ok {
			continue
		}
		out[key] = map[string]any{
			"value":          entry.Value.String(),
			"kind":           entry.Value.Kind().String(),
			"last_update_ms": entry.LastUpdateMs,
			"update_count":   entry.UpdateCount,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDebugBus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bus.Stats())
}

func (s *Server) handleDebugScheduler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cpu_load":       s.sched.CPULoad(),
		"total_overruns": s.sched.TotalOverruns(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
