// Package state implements the Shared State component (§4.A): a single
// process-wide key/value map guarded by one mutex, with pattern-based
// subscriptions delivered outside the lock.
package state

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/metrics"
)

// MaxKeyLen and MaxEntries are the bounds from §3/§4.A.
const (
	MaxKeyLen  = 64
	MaxEntries = 256
)

// Entry is a copy of a stored key's value and metadata (§3 StateEntry).
// Readers receive copies, never references into the store.
type Entry struct {
	Key          string
	Value        Value
	LastUpdateMs uint64
	UpdateCount  uint32
}

type subscription struct {
	handle    uint32
	pattern   string
	callback  func(key string, value Value)
	callCount atomic.Uint32
}

type dispatchJob struct {
	subs  []*subscription
	key   string
	value Value
}

// Store is the thread-safe Shared State map.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	subs    []*subscription
	nextH   atomic.Uint32

	dispatchMu  sync.Mutex
	dispatching bool
	pending     []dispatchJob
}

// New creates an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

// Set upserts key with value. If the stored value already compares equal
// (Value.Equal), the call is a no-op and no subscriptions fire (§4.A
// invariant, §3 invariant 3). Otherwise last_update_ms and update_count
// advance and matching subscriptions are invoked outside the lock, in
// registration order.
func (s *Store) Set(key string, value Value) error {
	if len(key) > MaxKeyLen {
		return domain.Wrap(domain.KindInvalidArgument, "state", fmt.Sprintf("key %q exceeds %d bytes", key, MaxKeyLen), domain.ErrKeyTooLong)
	}
	if sv, ok := value.AsString(); ok && len(sv) > MaxStringLen {
		return domain.Wrap(domain.KindInvalidArgument, "state", fmt.Sprintf("value for %q exceeds %d bytes", key, MaxStringLen), domain.ErrValueTooLong)
	}

	s.mu.Lock()
	existing, present := s.entries[key]
	if !present && len(s.entries) >= MaxEntries {
		s.mu.Unlock()
		return domain.Wrap(domain.KindResourceExhausted, "state", fmt.Sprintf("cannot add %q", key), domain.ErrStateFull)
	}
	if present && existing.Value.Equal(value) {
		s.mu.Unlock()
		return nil
	}

	now := domain.NowMs()
	var count uint32 = 1
	if present {
		count = existing.UpdateCount + 1
	}
	s.entries[key] = &Entry{Key: key, Value: value, LastUpdateMs: now, UpdateCount: count}
	keyCount := len(s.entries)

	var matched []*subscription
	for _, sub := range s.subs {
		if domain.MatchPattern(sub.pattern, key) {
			matched = append(matched, sub)
		}
	}
	s.mu.Unlock()

	metrics.StateWritesTotal.Inc()
	metrics.StateKeysTracked.Set(float64(keyCount))

	if len(matched) == 0 {
		return nil
	}
	s.enqueueDispatch(dispatchJob{subs: matched, key: key, value: value})
	return nil
}

// enqueueDispatch implements the copy-then-dispatch reentrancy rule:
// a Set triggered from inside a callback is accepted immediately but its
// own subscription dispatch is deferred until the outer dispatch frame
// completes, by sharing one pending queue drained by whichever call
// started dispatching first.
func (s *Store) enqueueDispatch(job dispatchJob) {
	s.dispatchMu.Lock()
	s.pending = append(s.pending, job)
	if s.dispatching {
		s.dispatchMu.Unlock()
		return
	}
	s.dispatching = true
	s.dispatchMu.Unlock()

	for {
		s.dispatchMu.Lock()
		if len(s.pending) == 0 {
			s.dispatching = false
			s.dispatchMu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.dispatchMu.Unlock()

		for _, sub := range next.subs {
			invokeSafely(sub, next.key, next.value)
		}
	}
}

func invokeSafely(sub *subscription, key string, value Value) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[state] subscription handle=%d pattern=%q panicked: %v", sub.handle, sub.pattern, r)
		}
	}()
	sub.callback(key, value)
	sub.callCount.Add(1)
}

// Get returns a copy of the raw value stored at key plus its metadata.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Get retrieves key typed as T, where T is one of the concrete Go types
// backing a Value (bool, int64, float64, string, map[string]any). This is
// the generic get<T>(key) operation from §4.A.
func Get[T any](s *Store, key string) (T, bool) {
	var zero T
	e, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	switch any(zero).(type) {
	case bool:
		v, ok := e.Value.AsBool()
		out, _ := any(v).(T)
		return out, ok
	case int64:
		v, ok := e.Value.AsInt()
		out, _ := any(v).(T)
		return out, ok
	case float64:
		v, ok := e.Value.AsFloat()
		out, _ := any(v).(T)
		return out, ok
	case string:
		v, ok := e.Value.AsString()
		out, _ := any(v).(T)
		return out, ok
	case map[string]any:
		v, ok := e.Value.AsDocument()
		out, _ := any(v).(T)
		return out, ok
	default:
		return zero, false
	}
}

// Subscribe registers callback for keys matching pattern and returns a
// handle usable with Unsubscribe. Handles are monotonically assigned and
// never reused within a run (§3 Subscription).
func (s *Store) Subscribe(pattern string, callback func(key string, value Value)) uint32 {
	handle := s.nextH.Add(1)
	sub := &subscription{handle: handle, pattern: pattern, callback: callback}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return handle
}

// Unsubscribe removes at most one subscription. Unknown handles are a
// no-op, making the operation idempotent (§3).
func (s *Store) Unsubscribe(handle uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.handle == handle {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Remove deletes key if present.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Keys returns all keys matching pattern, sorted for deterministic output.
func (s *Store) Keys(pattern string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.entries {
		if domain.MatchPattern(pattern, k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// HasChanged reports whether any key matching pattern has a
// last_update_ms strictly greater than sinceMs.
func (s *Store) HasChanged(pattern string, sinceMs uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if domain.MatchPattern(pattern, k) && e.LastUpdateMs > sinceMs {
			return true
		}
	}
	return false
}

// LastChangeTime returns the last_update_ms of key, or ok=false if absent.
func (s *Store) LastChangeTime(key string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return 0, false
	}
	return e.LastUpdateMs, true
}

// CompareAndSwap atomically replaces key's numeric value with newVal if
// its current value equals expected, returning whether the swap happened.
func CompareAndSwap[T int64 | float64](s *Store, key string, expected, newVal T) (bool, error) {
	s.mu.Lock()
	e, present := s.entries[key]
	if !present {
		s.mu.Unlock()
		return false, domain.Wrap(domain.KindNotFound, "state", key, domain.ErrKeyNotFound)
	}
	cur, ok := numericValue[T](e.Value)
	if !ok {
		s.mu.Unlock()
		return false, domain.Wrap(domain.KindInvalidArgument, "state", key, domain.ErrNotNumeric)
	}
	if cur != expected {
		s.mu.Unlock()
		return false, nil
	}
	e.Value = numericToValue(newVal)
	e.LastUpdateMs = domain.NowMs()
	e.UpdateCount++

	var matched []*subscription
	for _, sub := range s.subs {
		if domain.MatchPattern(sub.pattern, key) {
			matched = append(matched, sub)
		}
	}
	val := e.Value
	s.mu.Unlock()

	if len(matched) > 0 {
		s.enqueueDispatch(dispatchJob{subs: matched, key: key, value: val})
	}
	return true, nil
}

// Increment atomically adds delta to key's numeric value and returns the
// new value.
func Increment[T int64 | float64](s *Store, key string, delta T) (T, error) {
	s.mu.Lock()
	e, present := s.entries[key]
	var cur T
	if present {
		v, ok := numericValue[T](e.Value)
		if !ok {
			s.mu.Unlock()
			var zero T
			return zero, domain.Wrap(domain.KindInvalidArgument, "state", key, domain.ErrNotNumeric)
		}
		cur = v
	}
	next := cur + delta
	if !present && len(s.entries) >= MaxEntries {
		s.mu.Unlock()
		var zero T
		return zero, domain.Wrap(domain.KindResourceExhausted, "state", key, domain.ErrStateFull)
	}
	count := uint32(1)
	if present {
		count = e.UpdateCount + 1
	}
	s.entries[key] = &Entry{Key: key, Value: numericToValue(next), LastUpdateMs: domain.NowMs(), UpdateCount: count}

	var matched []*subscription
	for _, sub := range s.subs {
		if domain.MatchPattern(sub.pattern, key) {
			matched = append(matched, sub)
		}
	}
	val := s.entries[key].Value
	s.mu.Unlock()

	if len(matched) > 0 {
		s.enqueueDispatch(dispatchJob{subs: matched, key: key, value: val})
	}
	return next, nil
}

func numericValue[T int64 | float64](v Value) (T, bool) {
	var zero T
	switch any(zero).(type) {
	case int64:
		i, ok := v.AsInt()
		out, _ := any(i).(T)
		return out, ok
	case float64:
		f, ok := v.AsFloat()
		out, _ := any(f).(T)
		return out, ok
	}
	return zero, false
}

func numericToValue[T int64 | float64](v T) Value {
	switch x := any(v).(type) {
	case int64:
		return Int(x)
	case float64:
		return Float(x)
	}
	panic("unreachable")
}
