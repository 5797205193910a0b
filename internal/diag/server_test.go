package diag

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/config"
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/health"
	"github.com/Zapadenec1982/ModESP-sub004/internal/module"
	"github.com/Zapadenec1982/ModESP-sub004/internal/scheduler"
	"github.com/Zapadenec1982/ModESP-sub004/internal/state"
)

type noopModule struct{}

func (noopModule) Configure(context.Context, map[string]any) error { return nil }
func (noopModule) Init(context.Context) error                      { return nil }
func (noopModule) Start(context.Context) error                     { return nil }
func (noopModule) Stop(context.Context) error                      { return nil }
func (noopModule) Update(context.Context) error                    { return nil }

func newServerForTest(t *testing.T) *Server {
	t.Helper()
	reg := module.NewRegistry()
	reg.Register(module.Manifest{Name: "core", Type: domain.ModuleCritical, Factory: func() module.Module { return noopModule{} }})
	if err := reg.Boot(context.Background(), func(string) map[string]any { return nil }); err != nil {
		t.Fatalf("boot: %v", err)
	}

	b := bus.New()
	b.Init(16)
	sched := scheduler.New(reg, b)
	store := state.New()
	store.Set("sensor.temp", state.Float(4.2))

	cfgStore, err := config.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { cfgStore.Close() })

	checker := health.NewChecker(reg, sched, cfgStore)
	checker.RunOnce(context.Background())

	return New(reg, sched, b, store, checker)
}

func TestHealthzReportsHealthy(t *testing.T) {
	s := newServerForTest(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDebugModulesListsBootedModules(t *testing.T) {
	s := newServerForTest(t)
	req := httptest.NewRequest(http.MethodGet, "/debug/modules", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !containsSubstring(rec.Body.String(), "core") {
		t.Fatalf("expected body to mention module %q, got %s", "core", rec.Body.String())
	}
}

func TestDebugStateReturnsStoredKeys(t *testing.T) {
	s := newServerForTest(t)
	req := httptest.NewRequest(http.MethodGet, "/debug/state", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !containsSubstring(rec.Body.String(), "sensor.temp") {
		t.Fatalf("expected body to mention key %q, got %s", "sensor.temp", rec.Body.String())
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := newServerForTest(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func containsSubstring(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
