package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/actuator"
	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/config"
	"github.com/Zapadenec1982/ModESP-sub004/internal/diag"
	"github.com/Zapadenec1982/ModESP-sub004/internal/driver"
	"github.com/Zapadenec1982/ModESP-sub004/internal/hal"
	"github.com/Zapadenec1982/ModESP-sub004/internal/health"
	"github.com/Zapadenec1982/ModESP-sub004/internal/heartbeat"
	"github.com/Zapadenec1982/ModESP-sub004/internal/module"
	"github.com/Zapadenec1982/ModESP-sub004/internal/modules"
	"github.com/Zapadenec1982/ModESP-sub004/internal/scheduler"
	"github.com/Zapadenec1982/ModESP-sub004/internal/sensor"
	"github.com/Zapadenec1982/ModESP-sub004/internal/state"
)

// Daemon is the core controller runtime. It wires together every
// component — config store, shared state, event bus, driver registries,
// module registry, scheduler, heartbeat monitor, health checker, and
// diagnostics server — and drives their boot and shutdown sequence.
type Daemon struct {
	Config Config

	ConfigStore      *config.Store
	State            *state.Store
	Bus              *bus.Bus
	Environment      *hal.SimEnvironment
	SensorRegistry   *driver.SensorRegistry
	ActuatorRegistry *driver.ActuatorRegistry
	SensorManager    *sensor.Manager
	ActuatorManager  *actuator.Manager
	Registry         *module.Registry
	Scheduler        *scheduler.Scheduler
	Heartbeat        *heartbeat.Monitor
	Health           *health.Checker
	Diag             *diag.Server

	cancel context.CancelFunc
}

// New creates and initializes a Daemon with every component wired,
// loading configuration from disk.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration. Boot
// order follows the dependency chain: config store, shared state, event
// bus, driver registries, sensor/actuator managers, module registry
// (which instantiates and starts every module in dependency order), the
// scheduler, the heartbeat monitor, the health checker, and finally the
// diagnostics server.
func NewWithConfig(cfg Config) (*Daemon, error) {
	cfgStore, err := config.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}
	config.RegisterDefaultSections(cfgStore)
	if err := cfgStore.Load(); err != nil {
		cfgStore.Close()
		return nil, fmt.Errorf("load config store: %w", err)
	}

	d := &Daemon{
		Config:      cfg,
		ConfigStore: cfgStore,
		State:       state.New(),
		Bus:         bus.New(),
		Environment: hal.NewSimEnvironment(),
	}
	d.Bus.Init(256)

	d.Environment.AddZone("28-000000000001", &hal.ThermalZone{
		TempC: 20, AmbientC: 20, ColdTargetC: -10, TimeConstantS: 120,
		CompressorPin: "compressor",
	})

	d.SensorRegistry = driver.NewSensorRegistry()
	d.SensorRegistry.Register("ds18b20", driver.NewDS18B20(d.Environment))

	d.ActuatorRegistry = driver.NewActuatorRegistry()
	d.ActuatorRegistry.Register("relay", driver.NewRelay(d.Environment))
	d.ActuatorRegistry.Register("pwm", driver.NewPWM(d.Environment))

	d.SensorManager = sensor.New(d.SensorRegistry, d.State, d.Bus)
	d.ActuatorManager = actuator.New(d.ActuatorRegistry, d.State, d.Bus)

	d.Registry = module.NewRegistry()
	d.Registry.Register(modules.SensorBridgeManifest(d.SensorManager, "sensors"))
	d.Registry.Register(modules.ActuatorBridgeManifest(d.ActuatorManager, "actuators"))
	d.Registry.Register(modules.ClimateManifest(d.State, d.Bus, "climate"))
	d.Registry.Register(modules.HeartbeatReporterManifest(d.State, d.Bus, "system"))

	sectionFor := func(section string) map[string]any {
		doc, err := cfgStore.Export(section)
		if err != nil {
			log.Printf("[daemon] config section %q unavailable: %v", section, err)
			return map[string]any{}
		}
		return doc
	}
	if err := d.Registry.Boot(context.Background(), sectionFor); err != nil {
		cfgStore.Close()
		return nil, fmt.Errorf("boot modules: %w", err)
	}

	d.Scheduler = scheduler.New(d.Registry, d.Bus)
	d.Scheduler.Configure(sectionFor("system"))

	d.Heartbeat = heartbeat.New(d.Registry, d.Bus, d.escalate)
	d.Heartbeat.SetPolicy(parseHeartbeatPolicy(cfg.Heartbeat.Policy))
	if cfg.Heartbeat.RestartCap > 0 {
		d.Heartbeat.SetRestartCap(cfg.Heartbeat.RestartCap)
	}
	d.Scheduler.SetObserver(d.Heartbeat.Observe)

	d.Health = health.NewChecker(d.Registry, d.Scheduler, cfgStore)
	d.Diag = diag.New(d.Registry, d.Scheduler, d.Bus, d.State, d.Health)

	return d, nil
}

// escalate is the Heartbeat Monitor's PolicyEscalate / restart-cap-
// exceeded callback: it logs and leaves the module stopped rather than
// taking down the whole process, since a single misbehaving module
// should not prevent the rest of the chamber from being controlled.
func (d *Daemon) escalate(moduleName string, reason error) {
	log.Printf("[daemon] module %q escalated: %v", moduleName, reason)
}

func parseHeartbeatPolicy(s string) heartbeat.Policy {
	switch s {
	case "warn":
		return heartbeat.PolicyWarn
	case "escalate":
		return heartbeat.PolicyEscalate
	default:
		return heartbeat.PolicyRestart
	}
}

// Serve starts the scheduler tick loop, the heartbeat and health check
// loops, the config store's async writeback worker, and the
// diagnostics HTTP server, then blocks until ctx is cancelled or a
// termination signal arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.ConfigStore.RunAsyncWorker()

	go func() {
		if err := d.Scheduler.Run(ctx); err != nil {
			log.Printf("[daemon] scheduler stopped: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.Heartbeat.Tick(ctx)
			}
		}
	}()

	go d.Health.Run(ctx)

	httpServer := &http.Server{
		Addr:         d.Config.Diag.ListenAddr,
		Handler:      d.Diag.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		d.Scheduler.Stop()
		d.Registry.Shutdown(shutdownCtx)
		_ = d.ConfigStore.SaveAll()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.ConfigStore.Close()
		cancel()
	}()

	fmt.Printf("ModESP controller serving diagnostics on http://%s\n", d.Config.Diag.ListenAddr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down every daemon resource without waiting for a signal,
// for use by short-lived CLI commands that boot a Daemon but never call
// Serve.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Scheduler != nil {
		d.Scheduler.Stop()
	}
	if d.Registry != nil {
		d.Registry.Shutdown(context.Background())
	}
	if d.ConfigStore != nil {
		_ = d.ConfigStore.SaveAll()
		_ = d.ConfigStore.Close()
	}
}
