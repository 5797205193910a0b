package domain

import "time"

// ─── Event Priority (§3 Event) ──────────────────────────────────────────────

// Priority orders Event dispatch within a single bus Process call.
// Lower numeric value dispatches first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// ─── Module Type & Lifecycle State (§3 ModuleRecord, §4.G) ─────────────────

// ModuleType classifies a module's scheduling tier and heartbeat timeout.
type ModuleType int

const (
	ModuleCritical ModuleType = iota
	ModuleHigh
	ModuleStandard
	ModuleLow
	ModuleBackground
)

func (t ModuleType) String() string {
	switch t {
	case ModuleCritical:
		return "CRITICAL"
	case ModuleHigh:
		return "HIGH"
	case ModuleStandard:
		return "STANDARD"
	case ModuleLow:
		return "LOW"
	case ModuleBackground:
		return "BACKGROUND"
	default:
		return "UNKNOWN"
	}
}

// DefaultHeartbeatTimeout returns the per-type liveness threshold from §4.I.
func (t ModuleType) DefaultHeartbeatTimeout() time.Duration {
	switch t {
	case ModuleCritical:
		return 2 * time.Second
	case ModuleBackground:
		return 60 * time.Second
	default:
		return 10 * time.Second
	}
}

// ModuleState is a node in the lifecycle graph of §4.G.
type ModuleState int

const (
	StateCreated ModuleState = iota
	StateConfigured
	StateInitialized
	StateRunning
	StateError
	StateStopped
)

func (s ModuleState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateConfigured:
		return "CONFIGURED"
	case StateInitialized:
		return "INITIALIZED"
	case StateRunning:
		return "RUNNING"
	case StateError:
		return "ERROR"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// CanTransition reports whether the lifecycle graph in §4.G permits
// moving from s to next.
func (s ModuleState) CanTransition(next ModuleState) bool {
	if next == StateError {
		return true // "any state --error--> ERROR"
	}
	switch s {
	case StateCreated:
		return next == StateConfigured
	case StateConfigured:
		return next == StateInitialized
	case StateInitialized:
		return next == StateRunning || next == StateStopped
	case StateRunning:
		return next == StateStopped
	case StateError:
		return next == StateInitialized // reset or restart policy
	case StateStopped:
		return false
	default:
		return false
	}
}

// ─── Sensor / Actuator payloads (§3) ────────────────────────────────────────

// SensorReading is the result of a driver's Read call.
type SensorReading struct {
	Value        float64
	Unit         string
	TimestampMs  uint64
	IsValid      bool
	ErrorMessage string
}

// ActuatorStatus is the result of a driver's GetStatus call.
type ActuatorStatus struct {
	IsActive         bool
	CurrentValue     float64
	StateDescription string
	LastChangeMs     uint64
	IsHealthy        bool
	ErrorMessage     string
}

// NowMs returns the current time as milliseconds since the Unix epoch,
// the timebase used throughout §3's data model.
func NowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
