package bus

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/metrics"
)

// AppThreadToken is the capability required to Subscribe. It can only be
// obtained from the Bus that issues it, via ApplicationThread(). This
// renders §4.B/§9's "subscribe only from the application thread" rule as
// an API-level contract rather than an OS-thread check: code on another
// goroutine cannot construct a valid token and must route registration
// through a command posted to whichever goroutine holds it.
type AppThreadToken struct {
	owner *Bus
}

type subscription struct {
	handle    uint32
	pattern   string
	callback  func(Event)
	callCount atomic.Uint32
}

// Stats is a snapshot of bus counters (§4.B Statistics).
type Stats struct {
	TotalPublished     uint64
	TotalProcessed     uint64
	TotalDropped       uint64
	QueueDepth         int
	AvgProcessTimeUs   float64
}

// Bus is the bounded, priority-ordered publish/subscribe queue.
type Bus struct {
	mu        sync.Mutex
	queueSize int
	queue     []Event
	subs      []*subscription
	nextH     atomic.Uint32
	paused    bool
	filter    func(Event) bool

	published atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	avgUs     atomic.Uint64 // stores math.Float64bits of the EMA
}

// New creates a Bus with no queue capacity; call Init before Publish.
func New() *Bus {
	return &Bus{}
}

// Init (re)initializes the bus with the given queue capacity. It is
// idempotent: repeated calls drain any existing queue, delete pending
// events, and reset statistics (§4.B).
func (b *Bus) Init(queueSize int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queueSize = queueSize
	b.queue = nil
	b.paused = false
	b.published.Store(0)
	b.processed.Store(0)
	b.dropped.Store(0)
	b.avgUs.Store(0)
}

// ApplicationThread mints the capability token required by Subscribe.
// Call once from the goroutine that owns bus registration (typically the
// Application Controller during boot) and thread it through to any code
// that needs to subscribe.
func (b *Bus) ApplicationThread() AppThreadToken {
	return AppThreadToken{owner: b}
}

// SetFilter installs a process-wide publish filter. A nil filter accepts
// everything.
func (b *Bus) SetFilter(filter func(Event) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = filter
}

// Publish enqueues an event at NORMAL priority.
func (b *Bus) Publish(eventType string, payload map[string]any) error {
	return b.PublishPriority(eventType, payload, domain.PriorityNormal)
}

// PublishPriority enqueues an event at the given priority (§4.B Publish).
// If a process-wide filter rejects the event it is dropped silently and
// treated as success. If the queue is full the event is dropped, the drop
// counter increments, and a ResourceExhausted error is returned.
func (b *Bus) PublishPriority(eventType string, payload map[string]any, priority domain.Priority) error {
	ev := newEvent(eventType, payload, priority)

	b.mu.Lock()
	if b.filter != nil && !b.filter(ev) {
		b.mu.Unlock()
		return nil
	}
	if len(b.queue) >= b.queueSize {
		b.mu.Unlock()
		b.published.Add(1)
		b.dropped.Add(1)
		metrics.EventsPublishedTotal.WithLabelValues(priority.String()).Inc()
		metrics.EventsDroppedTotal.Inc()
		return domain.Wrap(domain.KindResourceExhausted, "bus", "queue full", domain.ErrQueueFull)
	}
	b.queue = append(b.queue, ev)
	depth := len(b.queue)
	b.mu.Unlock()

	b.published.Add(1)
	metrics.EventsPublishedTotal.WithLabelValues(priority.String()).Inc()
	metrics.BusQueueDepth.Set(float64(depth))
	return nil
}

// PublishISR is the ISR-safe publish variant (§4.B, §5): it never blocks.
// If the bus mutex is contended it drops the event rather than waiting,
// mirroring an ISR-safe enqueue primitive on real hardware.
func (b *Bus) PublishISR(eventType string, payload map[string]any, priority domain.Priority) error {
	ev := newEvent(eventType, payload, priority)

	if !b.mu.TryLock() {
		b.published.Add(1)
		b.dropped.Add(1)
		metrics.EventsPublishedTotal.WithLabelValues(priority.String()).Inc()
		metrics.EventsDroppedTotal.Inc()
		return domain.Wrap(domain.KindResourceExhausted, "bus", "ISR publish contended", domain.ErrQueueFull)
	}
	if b.filter != nil && !b.filter(ev) {
		b.mu.Unlock()
		return nil
	}
	if len(b.queue) >= b.queueSize {
		b.mu.Unlock()
		b.published.Add(1)
		b.dropped.Add(1)
		metrics.EventsPublishedTotal.WithLabelValues(priority.String()).Inc()
		metrics.EventsDroppedTotal.Inc()
		return domain.Wrap(domain.KindResourceExhausted, "bus", "queue full", domain.ErrQueueFull)
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	b.published.Add(1)
	metrics.EventsPublishedTotal.WithLabelValues(priority.String()).Inc()
	return nil
}

// Subscribe registers callback for events whose Type matches pattern.
// Requires a token minted by this Bus's ApplicationThread method;
// otherwise the call is rejected (§4.B "must be called from the
// application thread").
func (b *Bus) Subscribe(token AppThreadToken, pattern string, callback func(Event)) (uint32, error) {
	if token.owner != b {
		return 0, domain.Wrap(domain.KindInvalidState, "bus", "subscribe rejected", domain.ErrSubscribeWrongThread)
	}
	handle := b.nextH.Add(1)
	sub := &subscription{handle: handle, pattern: pattern, callback: callback}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return handle, nil
}

// Unsubscribe removes at most one subscription; unknown handles are a
// no-op.
func (b *Bus) Unsubscribe(handle uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.handle == handle {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns how many live subscriptions were registered with
// exactly this pattern string.
func (b *Bus) SubscriberCount(pattern string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, sub := range b.subs {
		if sub.pattern == pattern {
			n++
		}
	}
	return n
}

// Pause stops Process from draining the queue; Publish still succeeds.
func (b *Bus) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
}

// Resume re-enables Process.
func (b *Bus) Resume() {
	b.mu.Lock()
	b.paused = false
	b.mu.Unlock()
}

// Process drains the queue: it returns 0 immediately if paused; otherwise
// it pulls every currently queued event, stable-sorts by priority, and
// dispatches in that order, giving up (re-enqueueing the remainder) once
// maxMs of wall time has elapsed (§4.B Process algorithm). It returns the
// count of events actually dispatched.
func (b *Bus) Process(maxMs int) int {
	b.mu.Lock()
	if b.paused {
		b.mu.Unlock()
		return 0
	}
	batch := b.queue
	b.queue = nil
	subsSnapshot := make([]*subscription, len(b.subs))
	copy(subsSnapshot, b.subs)
	b.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Priority < batch[j].Priority
	})

	start := time.Now()
	budget := time.Duration(maxMs) * time.Millisecond
	processed := 0

	for i, ev := range batch {
		if maxMs >= 0 && time.Since(start) > budget {
			b.reenqueueRemainder(batch[i:])
			break
		}
		evStart := time.Now()
		for _, sub := range subsSnapshot {
			if domain.MatchPattern(sub.pattern, ev.Type) {
				invokeSafely(sub, ev)
			}
		}
		b.recordProcessTime(time.Since(evStart))
		processed++
	}

	b.processed.Add(uint64(processed))
	metrics.EventsProcessedTotal.Add(float64(processed))
	metrics.BusQueueDepth.Set(float64(b.QueueDepth()))
	return processed
}

func (b *Bus) reenqueueRemainder(remainder []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range remainder {
		if len(b.queue) >= b.queueSize {
			b.dropped.Add(1)
			continue
		}
		b.queue = append(b.queue, ev)
	}
}

func invokeSafely(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] subscription handle=%d pattern=%q panicked on event %q: %v", sub.handle, sub.pattern, ev.Type, r)
		}
	}()
	sub.callback(ev)
	sub.callCount.Add(1)
}

// recordProcessTime updates the moving average process time per event
// with an exponential moving average (factor 0.3, matching the smoothing
// the scheduler uses for CPU load in §4.H).
func (b *Bus) recordProcessTime(d time.Duration) {
	const alpha = 0.3
	us := float64(d.Microseconds())
	for {
		old := b.avgUs.Load()
		oldF := float64FromBits(old)
		var next float64
		if oldF == 0 {
			next = us
		} else {
			next = alpha*us + (1-alpha)*oldF
		}
		if b.avgUs.CompareAndSwap(old, float64Bits(next)) {
			return
		}
	}
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	depth := len(b.queue)
	b.mu.Unlock()
	return Stats{
		TotalPublished:   b.published.Load(),
		TotalProcessed:   b.processed.Load(),
		TotalDropped:     b.dropped.Load(),
		QueueDepth:       depth,
		AvgProcessTimeUs: float64FromBits(b.avgUs.Load()),
	}
}

// ResetStats zeroes all counters without touching the queue or
// subscriptions.
func (b *Bus) ResetStats() {
	b.published.Store(0)
	b.processed.Store(0)
	b.dropped.Store(0)
	b.avgUs.Store(0)
}

// QueueDepth returns the number of events currently queued.
func (b *Bus) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
