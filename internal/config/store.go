package config

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
	"github.com/Zapadenec1982/ModESP-sub004/internal/metrics"
)

// Migration upgrades a section document from fromVersion to fromVersion+1.
type Migration struct {
	FromVersion int
	Apply       func(doc map[string]any) map[string]any
}

type section struct {
	doc        map[string]any
	version    int
	schema     SectionSchema
	migrations []Migration
	dirty      bool
	generation uint64
}

// Store is the layered JSON configuration store (§4.C): one document per
// registered section, validated against a pluggable schema, persisted as
// an independent blob, with an async writeback worker that flushes dirty
// sections one at a time so writes to the same section never reorder.
type Store struct {
	mu       sync.RWMutex
	sections map[string]*section
	blobs    *blobStore

	dirtyCh chan string
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// persistMu serializes persistSection across the async worker and
	// synchronous Save/SaveAll callers.
	persistMu sync.Mutex
}

// Open creates a Store backed by a SQLite blob database under dir.
func Open(dir string) (*Store, error) {
	b, err := openBlobStore(dir)
	if err != nil {
		return nil, err
	}
	return newStore(b), nil
}

// OpenInMemory creates a Store backed by an in-process SQLite database,
// intended for tests and ephemeral boot profiles.
func OpenInMemory() (*Store, error) {
	b, err := openBlobStoreInMemory()
	if err != nil {
		return nil, err
	}
	return newStore(b), nil
}

func newStore(b *blobStore) *Store {
	return &Store{
		sections: make(map[string]*section),
		blobs:    b,
		dirtyCh:  make(chan string, 256),
		stopCh:   make(chan struct{}),
	}
}

// Close stops the async writeback worker (if running) and closes the
// backing database.
func (s *Store) Close() error {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
	return s.blobs.Close()
}

// RegisterSection declares a section with its default document, schema,
// and ordered migrations. It must be called before Load.
func (s *Store) RegisterSection(name string, defaults map[string]any, schema SectionSchema, migrations ...Migration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections[name] = &section{doc: cloneDoc(defaults), schema: schema, migrations: migrations}
}

// Load reads every registered section's persisted blob, applies pending
// migrations in order, validates the result, and replaces the in-memory
// document. Sections with no persisted blob keep their registered
// defaults. A section that fails validation after migration keeps its
// defaults and the failure is logged, matching the teacher's
// fail-open-to-defaults posture for boot-time config (§4.C, §9).
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, sec := range s.sections {
		blob, version, ok, err := s.blobs.read(name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(blob), &doc); err != nil {
			log.Printf("[config] section %q: corrupt blob, keeping defaults: %v", name, err)
			continue
		}
		doc, version = applyMigrations(doc, version, sec.migrations)
		if report := Validate(doc, sec.schema); !report.OK() {
			log.Printf("[config] section %q: validation failed after load, keeping defaults: %v", name, report.Errors)
			continue
		}
		sec.doc = doc
		sec.version = version
	}
	return nil
}

func applyMigrations(doc map[string]any, version int, migrations []Migration) (map[string]any, int) {
	for {
		advanced := false
		for _, m := range migrations {
			if m.FromVersion == version {
				doc = m.Apply(doc)
				version++
				advanced = true
				break
			}
		}
		if !advanced {
			return doc, version
		}
	}
}

// Get retrieves the value at the dotted path (e.g. "climate.setpoint")
// typed as T.
func Get[T any](s *Store, path string) (T, bool) {
	var zero T
	sectionName, rest := splitPath(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[sectionName]
	if !ok {
		return zero, false
	}
	v, ok := getPath(sec.doc, rest)
	if !ok {
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

// Set validates and applies value at the dotted path within its section,
// marks the section dirty, and bumps its generation counter so a
// concurrently in-flight flush of a stale snapshot cannot clear dirty
// out from under this write (§4.C, §9 "async worker must not reorder
// writes to the same section").
func (s *Store) Set(path string, value any) error {
	sectionName, rest := splitPath(path)
	s.mu.Lock()
	sec, ok := s.sections[sectionName]
	if !ok {
		s.mu.Unlock()
		return domain.Wrap(domain.KindNotFound, "config", sectionName, domain.ErrSectionUnknown)
	}
	candidate := cloneDoc(sec.doc)
	setPath(candidate, rest, value)
	if report := Validate(candidate, sec.schema); !report.OK() {
		s.mu.Unlock()
		return domain.Wrap(domain.KindValidationError, "config", report.Error(), domain.ErrValidationFailed)
	}
	sec.doc = candidate
	sec.dirty = true
	sec.generation++
	s.mu.Unlock()
	return nil
}

// Export returns a deep copy of section's current document.
func (s *Store) Export(sectionName string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[sectionName]
	if !ok {
		return nil, domain.Wrap(domain.KindNotFound, "config", sectionName, domain.ErrSectionUnknown)
	}
	return cloneDoc(sec.doc), nil
}

// ImportJSON replaces section's document wholesale after validation.
func (s *Store) ImportJSON(sectionName string, raw []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Wrap(domain.KindInvalidArgument, "config", sectionName, domain.ErrImportInvalid)
	}
	s.mu.Lock()
	sec, ok := s.sections[sectionName]
	if !ok {
		s.mu.Unlock()
		return domain.Wrap(domain.KindNotFound, "config", sectionName, domain.ErrSectionUnknown)
	}
	if report := Validate(doc, sec.schema); !report.OK() {
		s.mu.Unlock()
		return domain.Wrap(domain.KindValidationError, "config", report.Error(), domain.ErrValidationFailed)
	}
	sec.doc = doc
	sec.dirty = true
	sec.generation++
	s.mu.Unlock()
	return nil
}

// Save persists sectionName synchronously if dirty. A no-op otherwise.
func (s *Store) Save(sectionName string) error {
	s.mu.Lock()
	sec, ok := s.sections[sectionName]
	if !ok {
		s.mu.Unlock()
		return domain.Wrap(domain.KindNotFound, "config", sectionName, domain.ErrSectionUnknown)
	}
	if !sec.dirty {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.persistSection(sectionName)
}

// SaveAsync schedules sectionName for writeback by the async worker
// without blocking the caller. RunAsyncWorker must be running to make
// progress; otherwise entries simply accumulate as dirty until Save or
// SaveAll is called.
func (s *Store) SaveAsync(sectionName string) {
	select {
	case s.dirtyCh <- sectionName:
	default:
		log.Printf("[config] dirty queue full, dropping async save signal for %q (section remains dirty)", sectionName)
	}
}

// RunAsyncWorker collects the sections signalled by SaveAsync and flushes
// them one at a time every 2 seconds (and once more on Close); the order
// in which different sections are flushed is not defined. Flushes of the
// same section never run concurrently (§4.C, §9). It blocks until ctx-equivalent stop
// via Close, and is meant to run in its own goroutine from the
// Application Controller's boot sequence.
func (s *Store) RunAsyncWorker() {
	s.wg.Add(1)
	defer s.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	pending := make(map[string]struct{})
	for {
		select {
		case <-s.stopCh:
			for name := range pending {
				if err := s.persistSection(name); err != nil {
					log.Printf("[config] final flush of %q failed: %v", name, err)
				}
			}
			return
		case name := <-s.dirtyCh:
			pending[name] = struct{}{}
		case <-ticker.C:
			for name := range pending {
				if err := s.persistSection(name); err != nil {
					log.Printf("[config] flush of %q failed: %v", name, err)
					continue
				}
				delete(pending, name)
			}
		}
	}
}

// persistSection marshals the section's *current* in-memory document
// (never a stale queued snapshot) and writes it inside one transaction.
// It records the generation at read time and only clears dirty if no
// newer write raced in while marshaling, so a write arriving mid-flush
// is never silently dropped.
func (s *Store) persistSection(name string) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	sec, ok := s.sections[name]
	if !ok {
		s.mu.RUnlock()
		return domain.Wrap(domain.KindNotFound, "config", name, domain.ErrSectionUnknown)
	}
	doc := cloneDoc(sec.doc)
	version := sec.version
	gen := sec.generation
	s.mu.RUnlock()

	blob, err := json.Marshal(doc)
	if err != nil {
		metrics.ConfigSaveFailuresTotal.WithLabelValues(name).Inc()
		return domain.Wrap(domain.KindInvalidArgument, "config", name, err)
	}
	if err := s.blobs.write(name, string(blob), version, domain.NowMs()); err != nil {
		metrics.ConfigSaveFailuresTotal.WithLabelValues(name).Inc()
		return err
	}

	s.mu.Lock()
	if sec.generation == gen {
		sec.dirty = false
	}
	s.mu.Unlock()
	return nil
}

// PendingCount reports how many registered sections currently have
// unpersisted changes, used by diagnostics.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sec := range s.sections {
		if sec.dirty {
			n++
		}
	}
	return n
}

// SaveAll synchronously persists every dirty section, returning the
// first error encountered but still attempting the rest.
func (s *Store) SaveAll() error {
	s.mu.RLock()
	names := make([]string, 0, len(s.sections))
	for name, sec := range s.sections {
		if sec.dirty {
			names = append(names, name)
		}
	}
	s.mu.RUnlock()

	var firstErr error
	for _, name := range names {
		if err := s.persistSection(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
