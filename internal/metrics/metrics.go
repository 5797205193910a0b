// Package metrics declares the Prometheus instrumentation exposed on the
// diagnostics server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Scheduler ──────────────────────────────────────────────────────────────

// TicksTotal counts completed scheduler ticks.
var TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "scheduler_ticks_total",
	Help:      "Total scheduler ticks completed.",
})

// TickOverrunsTotal counts ticks whose total duration exceeded the tick period.
var TickOverrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "scheduler_tick_overruns_total",
	Help:      "Total ticks whose duration exceeded the scheduler tick period.",
})

// ModuleOverrunsTotal counts budget overruns per module.
var ModuleOverrunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "module_overruns_total",
	Help:      "Total update-budget overruns per module.",
}, []string{"module"})

// ModuleUpdateSeconds tracks per-module update duration.
var ModuleUpdateSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "modesp",
	Name:      "module_update_seconds",
	Help:      "Time spent in a module's Update call.",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
}, []string{"module"})

// CPULoad tracks the scheduler's EMA-smoothed ratio of busy to tick time.
var CPULoad = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "modesp",
	Name:      "cpu_load_ratio",
	Help:      "EMA-smoothed ratio of tick time spent updating modules.",
})

// ─── Event Bus ──────────────────────────────────────────────────────────────

// EventsPublishedTotal counts publish attempts that passed the filter, by
// priority, including those then dropped.
var EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "bus_events_published_total",
	Help:      "Total events published, by priority.",
}, []string{"priority"})

// EventsDroppedTotal counts events dropped because the queue was full or,
// for PublishISR, because the bus mutex was contended.
var EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "bus_events_dropped_total",
	Help:      "Total events dropped because the bus queue was full or its lock was contended (ISR path).",
})

// EventsProcessedTotal counts events dispatched to subscribers.
var EventsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "bus_events_processed_total",
	Help:      "Total events dispatched to subscribers.",
})

// BusQueueDepth tracks the current number of queued, undispatched events.
var BusQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "modesp",
	Name:      "bus_queue_depth",
	Help:      "Current number of events queued on the bus.",
})

// ─── Module lifecycle ───────────────────────────────────────────────────────

// ModuleState tracks a module's current lifecycle state as a numeric gauge,
// the domain.ModuleState enum value (0=CREATED 1=CONFIGURED 2=INITIALIZED
// 3=RUNNING 4=ERROR 5=STOPPED).
var ModuleState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "modesp",
	Name:      "module_state",
	Help:      "Current lifecycle state per module (0=CREATED..3=RUNNING, 4=ERROR, 5=STOPPED).",
}, []string{"module"})

// ModuleRestartsTotal counts heartbeat-driven restarts per module.
var ModuleRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "module_restarts_total",
	Help:      "Total heartbeat-driven restarts per module.",
}, []string{"module"})

// ModuleEscalationsTotal counts modules that exceeded their restart cap.
var ModuleEscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "module_escalations_total",
	Help:      "Total modules escalated after exceeding their restart cap.",
}, []string{"module"})

// ─── Shared State ───────────────────────────────────────────────────────────

// StateWritesTotal counts Shared State Set calls.
var StateWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "state_writes_total",
	Help:      "Total Set calls against the shared state store.",
})

// StateKeysTracked tracks the number of distinct keys currently held.
var StateKeysTracked = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "modesp",
	Name:      "state_keys_tracked",
	Help:      "Number of distinct keys currently held in the shared state store.",
})

// ─── Sensors & Actuators ────────────────────────────────────────────────────

// SensorReadsTotal counts sensor reads, by sensor and outcome.
var SensorReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "sensor_reads_total",
	Help:      "Total sensor reads, by sensor and outcome.",
}, []string{"sensor", "outcome"})

// ActuatorCommandsTotal counts actuator commands, by actuator and outcome.
var ActuatorCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "actuator_commands_total",
	Help:      "Total actuator commands issued, by actuator and outcome.",
}, []string{"actuator", "outcome"})

// ─── Config Store ───────────────────────────────────────────────────────────

// ConfigSaveFailuresTotal counts failed config section persists.
var ConfigSaveFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "modesp",
	Name:      "config_save_failures_total",
	Help:      "Total failed attempts to persist a config section.",
}, []string{"section"})
