package modules

import (
	"context"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/bus"
	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/module"
	"github.com/Zapadenec1982/ModESP-sub004/internal/state"
)

const defaultHeartbeatPeriodMs = 1000

// HeartbeatReporter is a BACKGROUND-type module that periodically
// publishes system.heartbeat and refreshes state.system.uptime. It is
// distinct from the Heartbeat Monitor (§4.I), which observes every
// module's liveness rather than announcing one module's own.
type HeartbeatReporter struct {
	store *state.Store
	bus   *bus.Bus

	periodMs   uint64
	lastPubMs  uint64
	startedAt  time.Time
	now        func() time.Time
}

// NewHeartbeatReporter constructs a HeartbeatReporter bound to store
// and b.
func NewHeartbeatReporter(store *state.Store, b *bus.Bus) *HeartbeatReporter {
	return &HeartbeatReporter{store: store, bus: b, periodMs: defaultHeartbeatPeriodMs, now: time.Now}
}

func (h *HeartbeatReporter) Configure(ctx context.Context, section map[string]any) error {
	if v, ok := asFloat(section["heartbeat_period"]); ok && v > 0 {
		h.periodMs = uint64(v)
	}
	return nil
}

func (h *HeartbeatReporter) Init(ctx context.Context) error { return nil }

func (h *HeartbeatReporter) Start(ctx context.Context) error {
	h.startedAt = h.now()
	return nil
}

func (h *HeartbeatReporter) Stop(ctx context.Context) error { return nil }

func (h *HeartbeatReporter) Update(ctx context.Context) error {
	now := domain.NowMs()
	if h.lastPubMs != 0 && now-h.lastPubMs < h.periodMs {
		return nil
	}
	h.lastPubMs = now

	uptimeS := h.now().Sub(h.startedAt).Seconds()
	if err := h.store.Set("state.system.uptime", state.Float(uptimeS)); err != nil {
		return err
	}
	return h.bus.PublishPriority("system.heartbeat", map[string]any{
		"uptime_s": uptimeS,
	}, domain.PriorityLow)
}

// HeartbeatReporterManifest builds the manifest for a HeartbeatReporter
// module.
func HeartbeatReporterManifest(store *state.Store, b *bus.Bus, configSection string) module.Manifest {
	return module.Manifest{
		Name:                "heartbeat_reporter",
		Version:             "1.0.0",
		Type:                domain.ModuleBackground,
		Priority:            0,
		ConfigSection:       configSection,
		PublishedEvents:     []string{"system.heartbeat"},
		PublishedStateKeys:  []string{"state.system.uptime"},
		Factory:             func() module.Module { return NewHeartbeatReporter(store, b) },
	}
}
