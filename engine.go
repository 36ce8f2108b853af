package liekodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kinfkong/liekodb/internal/names"
	"github.com/kinfkong/liekodb/internal/persist"
)

// defaultSaveDelay is the debounce window armed after every mutation
// (spec §6, "saveDelay").
const defaultSaveDelay = 50 * time.Millisecond

// Config carries the configuration options spec §6 documents. Zero values
// are replaced by their documented defaults in Open.
type Config struct {
	// StoragePath is the directory snapshots live in; created if missing.
	StoragePath string
	// SaveDelay is the debounce window before a dirty collection is
	// flushed to disk.
	SaveDelay time.Duration
	// Debug, when Logger is nil, builds a development logger so that
	// structured per-operation logs (insert/update/etc.) are emitted at
	// debug level. When Logger is set, Debug is not consulted and the
	// logger's own level decides whether those logs appear.
	Debug bool
	// Logger receives structured operation and persister logs. A no-op
	// logger is used if nil.
	Logger *zap.Logger
	// Clock overrides time.Now, for tests that need deterministic
	// createdAt/updatedAt values.
	Clock func() time.Time
}

// Engine is the top-level, single-process document store: a registry of
// named Collections sharing one storage directory and one snapshot
// persister (spec §2, §6).
type Engine struct {
	cfg       Config
	persister *persist.Manager
	logger    *zap.Logger
	clock     func() time.Time

	mu          sync.Mutex
	collections map[string]*Collection
}

// Open creates or attaches to a storage directory, restoring any existing
// snapshots lazily on first access to each collection (spec §4.6, "On
// load"). The caller must call Close to flush outstanding writes.
func Open(cfg Config) (*Engine, error) {
	if cfg.StoragePath == "" {
		cfg.StoragePath = "./storage"
	}
	if cfg.SaveDelay <= 0 {
		cfg.SaveDelay = defaultSaveDelay
	}
	logger := cfg.Logger
	if logger == nil {
		if cfg.Debug {
			devLogger, err := zap.NewDevelopment()
			if err != nil {
				return nil, errors.Wrap(err, "liekodb: build debug logger")
			}
			logger = devLogger
		} else {
			logger = zap.NewNop()
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	persister, err := persist.NewManager(cfg.StoragePath, cfg.SaveDelay, logger)
	if err != nil {
		return nil, errors.Wrap(err, "liekodb: open engine")
	}

	return &Engine{
		cfg:         cfg,
		persister:   persister,
		logger:      logger,
		clock:       clock,
		collections: make(map[string]*Collection),
	}, nil
}

// Collection returns the named collection, validating its name (spec §6,
// "Collection name grammar") and lazily loading any existing snapshot the
// first time it is referenced.
func (e *Engine) Collection(name string) (*Collection, error) {
	if err := names.Check(name); err != nil {
		return nil, newError(CodeValidation, fmt.Sprintf("liekodb: %s", err.Error()))
	}

	e.mu.Lock()
	if c, ok := e.collections[name]; ok {
		e.mu.Unlock()
		return c, nil
	}
	c := newCollection(name, e.persister, e.logger, e.clock)
	e.collections[name] = c
	e.mu.Unlock()

	docs, err := e.persister.Load(name)
	if err != nil {
		return nil, errors.Wrapf(err, "liekodb: load collection %q", name)
	}
	if docs != nil {
		c.loadFrom(docs)
	}
	return c, nil
}

// DropCollection removes a collection's in-memory state and on-disk
// snapshot, and forgets it (a later reference to the same name starts
// fresh).
func (e *Engine) DropCollection(name string) error {
	e.mu.Lock()
	c, ok := e.collections[name]
	if ok {
		delete(e.collections, name)
	}
	e.mu.Unlock()
	if !ok {
		return e.persister.Drop(name)
	}
	return c.Drop()
}

// CollectionNames returns the names of every collection referenced so far
// in this process, in no particular order.
func (e *Engine) CollectionNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.collections))
	for name := range e.collections {
		out = append(out, name)
	}
	return out
}

// Stats reports the operational status of every known collection
// (SPEC_FULL §10 supplement).
func (e *Engine) Stats() map[string]Stats {
	e.mu.Lock()
	names := make([]string, 0, len(e.collections))
	cols := make([]*Collection, 0, len(e.collections))
	for name, c := range e.collections {
		names = append(names, name)
		cols = append(cols, c)
	}
	e.mu.Unlock()

	out := make(map[string]Stats, len(cols))
	for i, c := range cols {
		out[names[i]] = c.Stats()
	}
	return out
}

// Close flushes every dirty collection's snapshot synchronously and
// cancels all pending debounce timers (spec §5, "close() suspends until
// all outstanding snapshots are complete").
func (e *Engine) Close(ctx context.Context) error {
	if err := e.persister.Close(ctx); err != nil {
		return errors.Wrap(err, "liekodb: close engine")
	}
	return nil
}

// ---- envelope-wrapped convenience API (spec §6, §7) ----
//
// These mirror Collection's typed methods but return the stable
// {success, data, error} Result envelope a transport adapter serializes
// directly, applying the documented user-visible failure conventions
// (empty find -> 404, non-matching count -> success with 0, an
// entirely-upsert insert -> success with insertedCount 0).

// Find runs find(filters, options) against the named collection, wrapped
// in the public Result envelope.
func (e *Engine) Find(collection string, filters Doc, opts FindOptions) Result {
	c, err := e.Collection(collection)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	docs, err := c.Find(filters, opts)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	if len(docs) == 0 {
		return failWithData(newError(CodeNotFound, "liekodb: no documents matched"), []Doc{})
	}
	return ok(docs)
}

// Count runs count(filters) against the named collection.
func (e *Engine) Count(collection string, filters Doc) Result {
	c, err := e.Collection(collection)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	n, err := c.Count(filters)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	return ok(n)
}

// FindByID runs findById(id) against the named collection.
func (e *Engine) FindByID(collection, id string) Result {
	c, err := e.Collection(collection)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	doc, found := c.FindByID(id)
	if !found {
		return fail(newError(CodeNotFound, fmt.Sprintf("liekodb: no document with id %q", id)))
	}
	return ok(doc)
}

// Paginate runs paginate(filters, options) against the named collection.
func (e *Engine) Paginate(collection string, filters Doc, opts PaginateOptions) Result {
	c, err := e.Collection(collection)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	page, err := c.Paginate(filters, opts)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	return ok(page)
}

// Insert runs insert(docs) against the named collection.
func (e *Engine) Insert(collection string, docs []Doc) Result {
	c, err := e.Collection(collection)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	summary, err := c.Insert(docs)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	return ok(summary)
}

// CreateIndex runs createIndex(spec) against the named collection.
func (e *Engine) CreateIndex(collection string, spec IndexSpec) Result {
	c, err := e.Collection(collection)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	if err := c.CreateIndex(spec); err != nil {
		return fail(asEnvelopeError(err))
	}
	return ok(nil)
}

// Update runs update(filters, spec, options) against the named
// collection.
func (e *Engine) Update(collection string, filters, spec Doc, opts UpdateOptions) Result {
	c, err := e.Collection(collection)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	summary, err := c.Update(filters, spec, opts)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	return ok(summary)
}

// UpdateByID runs updateById(id, spec, options) against the named
// collection.
func (e *Engine) UpdateByID(collection, id string, spec Doc, opts UpdateOptions) Result {
	c, err := e.Collection(collection)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	doc, err := c.UpdateByID(id, spec, opts)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	return ok(doc)
}

// Delete runs delete(filters) against the named collection.
func (e *Engine) Delete(collection string, filters Doc) Result {
	c, err := e.Collection(collection)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	n, err := c.Delete(filters)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	return ok(n)
}

// DeleteByID runs deleteById(id) against the named collection.
func (e *Engine) DeleteByID(collection, id string) Result {
	c, err := e.Collection(collection)
	if err != nil {
		return fail(asEnvelopeError(err))
	}
	if err := c.DeleteByID(id); err != nil {
		return fail(asEnvelopeError(err))
	}
	return ok(nil)
}

// Drop runs drop() against the named collection.
func (e *Engine) Drop(collection string) Result {
	if err := e.DropCollection(collection); err != nil {
		return fail(asEnvelopeError(err))
	}
	return ok(nil)
}

// asEnvelopeError coerces any error into the envelope's *Error shape,
// defaulting unexpected errors to CodeInternal (spec §7, "Internal").
func asEnvelopeError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(CodeInternal, err.Error())
}
