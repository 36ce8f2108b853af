// Package persist implements the debounced, atomic, per-collection
// snapshot writer described in spec §4.6: on fire it serializes the
// current document set to "{name}.json.tmp" and renames it into place as
// "{name}.json", so a crash mid-write never corrupts the previous
// snapshot.
package persist

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SaveFunc produces the current, canonically-ordered document set for one
// collection; it is expected to take the collection's own lock internally.
type SaveFunc func() []bson.M

// ResultFunc is notified after each save attempt for a collection so the
// caller can update its own dirty/lastSave bookkeeping (spec §4.6: clear
// dirty and update lastSave on success; leave dirty on failure).
type ResultFunc func(savedAt time.Time, err error)

// Manager debounces and serializes writes for a set of named collections
// sharing one storage directory.
type Manager struct {
	dir    string
	delay  time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	timers   map[string]*time.Timer
	saving   map[string]bool
	rearm    map[string]bool
	saveFns  map[string]SaveFunc
	onResult map[string]ResultFunc
	backoffs map[string]*backoff.ExponentialBackOff
	closed   bool
	wg       sync.WaitGroup
}

// NewManager creates a persister writing into dir, created if missing.
func NewManager(dir string, delay time.Duration, logger *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "persist: create storage dir")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dir:      dir,
		delay:    delay,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		saving:   make(map[string]bool),
		rearm:    make(map[string]bool),
		saveFns:  make(map[string]SaveFunc),
		onResult: make(map[string]ResultFunc),
		backoffs: make(map[string]*backoff.ExponentialBackOff),
	}, nil
}

// path returns the on-disk snapshot path for a collection name.
func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name+".json")
}

func (m *Manager) tmpPath(name string) string {
	return filepath.Join(m.dir, name+".json.tmp")
}

// Register associates a collection name with the function used to obtain
// its current document set at save time, and an optional callback invoked
// after every save attempt. Must be called before Arm.
func (m *Manager) Register(name string, fn SaveFunc, onResult ResultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveFns[name] = fn
	m.onResult[name] = onResult
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.delay
	bo.MaxInterval = 30 * time.Second
	m.backoffs[name] = bo
}

// Load reads an existing snapshot for name, if present. It returns
// (nil, nil) if no file exists yet.
func (m *Manager) Load(name string) ([]bson.M, error) {
	data, err := os.ReadFile(m.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "persist: read snapshot")
	}
	return DecodeSnapshot(data)
}

// Arm (re)schedules a save for name after the configured debounce delay,
// canceling any pending timer (spec §4.6, "Trigger").
func (m *Manager) Arm(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.scheduleLocked(name, m.delay)
}

func (m *Manager) scheduleLocked(name string, delay time.Duration) {
	if t, ok := m.timers[name]; ok {
		t.Stop()
	}
	m.timers[name] = time.AfterFunc(delay, func() { m.fire(name) })
}

func (m *Manager) fire(name string) {
	m.mu.Lock()
	if m.saving[name] {
		m.rearm[name] = true
		m.mu.Unlock()
		return
	}
	m.saving[name] = true
	fn := m.saveFns[name]
	m.mu.Unlock()

	err := m.writeOnce(name, fn)

	m.mu.Lock()
	m.saving[name] = false
	needRearm := m.rearm[name]
	m.rearm[name] = false
	bo := m.backoffs[name]
	onResult := m.onResult[name]
	m.mu.Unlock()

	now := time.Now()
	if onResult != nil {
		onResult(now, err)
	}

	if err != nil {
		m.logger.Error("liekodb: snapshot write failed", zap.String("collection", name), zap.Error(err))
		m.mu.Lock()
		if !m.closed {
			m.scheduleLocked(name, bo.NextBackOff())
		}
		m.mu.Unlock()
		return
	}
	bo.Reset()

	m.mu.Lock()
	if needRearm && !m.closed {
		m.scheduleLocked(name, m.delay)
	}
	m.mu.Unlock()
}

func (m *Manager) writeOnce(name string, fn SaveFunc) error {
	if fn == nil {
		return nil
	}
	docs := fn()
	data, err := EncodeSnapshot(docs)
	if err != nil {
		return errors.Wrap(err, "persist: encode")
	}
	tmp := m.tmpPath(name)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "persist: write tmp")
	}
	if err := os.Rename(tmp, m.path(name)); err != nil {
		return errors.Wrap(err, "persist: rename")
	}
	return nil
}

// Flush synchronously saves every registered collection right now,
// bypassing the debounce timers.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.saveFns))
	for name := range m.saveFns {
		names = append(names, name)
	}
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			m.mu.Lock()
			if t, ok := m.timers[name]; ok {
				t.Stop()
			}
			fn := m.saveFns[name]
			onResult := m.onResult[name]
			m.mu.Unlock()
			err := m.writeOnce(name, fn)
			if onResult != nil {
				onResult(time.Now(), err)
			}
			return err
		})
	}
	return g.Wait()
}

// Drop deletes the on-disk snapshot for name, if present (idempotent).
func (m *Manager) Drop(name string) error {
	m.mu.Lock()
	if t, ok := m.timers[name]; ok {
		t.Stop()
		delete(m.timers, name)
	}
	delete(m.saveFns, name)
	delete(m.onResult, name)
	delete(m.backoffs, name)
	m.mu.Unlock()

	err := os.Remove(m.path(name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "persist: drop snapshot")
	}
	_ = os.Remove(m.tmpPath(name))
	return nil
}

// Close cancels all pending timers and performs one final synchronous
// flush of every registered collection, returning only once every snapshot
// has been durably renamed into place (spec §4.6, "Close").
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, t := range m.timers {
		t.Stop()
	}
	m.mu.Unlock()

	return m.Flush(ctx)
}
