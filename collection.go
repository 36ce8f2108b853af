package liekodb

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"

	"github.com/kinfkong/liekodb/internal/filter"
	"github.com/kinfkong/liekodb/internal/path"
	"github.com/kinfkong/liekodb/internal/persist"
	"github.com/kinfkong/liekodb/internal/pipeline"
	"github.com/kinfkong/liekodb/internal/update"
)

const defaultMaxReturn = 50

// FindOptions controls the read pipeline (spec §4.3).
type FindOptions struct {
	Sort       pipeline.Sort
	Skip       int
	Limit      int // pipeline.LimitAll means "all"
	Projection Doc
}

// UpdateOptions controls what Update reports back about the documents it
// touched (spec §4.5). UpdateByID accepts it but ignores it: it always
// returns the updated document.
type UpdateOptions struct {
	ReturnIDs  bool
	ReturnDocs bool
	MaxReturn  int
}

// PaginateOptions controls paginate (spec §4.5).
type PaginateOptions struct {
	Page  int
	Limit int
	Sort  pipeline.Sort
}

// PageMeta is the metadata block returned alongside a page of results.
type PageMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalItems int  `json:"totalItems"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
	NextPage   int  `json:"nextPage,omitempty"`
	PrevPage   int  `json:"prevPage,omitempty"`
	StartIndex int  `json:"startIndex"`
	EndIndex   int  `json:"endIndex"`
}

// Page is the result of Paginate.
type Page struct {
	Data []Doc    `json:"data"`
	Meta PageMeta `json:"meta"`
}

// InsertSummary reports the outcome of Insert (spec §4.5).
type InsertSummary struct {
	InsertedCount int      `json:"insertedCount"`
	UpdatedCount  int      `json:"updatedCount"`
	IDs           []string `json:"ids,omitempty"`
	FirstID       string   `json:"firstId,omitempty"`
	LastID        string   `json:"lastId,omitempty"`
	Prefix        string   `json:"prefix,omitempty"`
}

// UpdateSummary reports the outcome of update/updateById.
type UpdateSummary struct {
	MatchedCount int      `json:"matchedCount"`
	IDs          []string `json:"ids,omitempty"`
	Docs         []Doc    `json:"docs,omitempty"`
	Truncated    bool     `json:"truncated,omitempty"`
}

// Collection is the in-memory document store for one named collection
// (spec §4.5): the document vector, the primary id index, any declared
// secondary indexes, and the dirty/lastSave bookkeeping that drives the
// snapshot persister.
type Collection struct {
	mu   sync.Mutex
	name string

	data    []Doc
	idIndex map[string]int
	indexes map[string]*secondaryIndex

	dirty    bool
	lastSave time.Time
	// epoch counts mutations; inFlightEpoch is the epoch value as of the
	// most recent snapshot handed to the persister. A save only clears
	// dirty if no mutation happened after that snapshot was taken.
	epoch         uint64
	inFlightEpoch uint64

	resultCache   *filter.ResultCache
	compiledCache *filter.CompiledCache

	persister *persist.Manager
	logger    *zap.Logger
	clock     func() time.Time
}

func newCollection(name string, persister *persist.Manager, logger *zap.Logger, clock func() time.Time) *Collection {
	c := &Collection{
		name:          name,
		idIndex:       make(map[string]int),
		indexes:       make(map[string]*secondaryIndex),
		resultCache:   filter.NewResultCache(1000),
		compiledCache: filter.NewCompiledCache(256),
		persister:     persister,
		logger:        logger,
		clock:         clock,
	}
	persister.Register(name, c.snapshotLocked, c.onSaveResult)
	return c
}

// onSaveResult is the persister's ResultFunc callback: on success it
// clears dirty and advances lastSave; on failure dirty is left set so the
// next armed timer retries (spec §4.6, "On fire").
func (c *Collection) onSaveResult(savedAt time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return
	}
	c.lastSave = savedAt
	if c.epoch == c.inFlightEpoch {
		c.dirty = false
	}
}

// snapshotLocked is the SaveFunc passed to the persister: it takes the
// collection's own lock to obtain a consistent copy of the current data.
func (c *Collection) snapshotLocked() []Doc {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlightEpoch = c.epoch
	out := make([]Doc, len(c.data))
	for i, d := range c.data {
		out[i] = pipeline.DeepCopyDoc(d)
	}
	return out
}

func (c *Collection) markDirty() {
	c.dirty = true
	c.epoch++
	c.resultCache.Invalidate()
	c.persister.Arm(c.name)
}

// markDirtyIfMutated arms the persister and invalidates caches for a batch
// that errors out partway through, so documents already applied by earlier
// iterations of the same Insert call are still snapshotted and not served
// from a now-stale cached read.
func (c *Collection) markDirtyIfMutated(summary *InsertSummary) {
	if summary.InsertedCount > 0 || summary.UpdatedCount > 0 {
		c.markDirty()
	}
}

func (c *Collection) loadFrom(docs []Doc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = docs
	c.idIndex = make(map[string]int, len(docs))
	for i, d := range docs {
		if id, ok := d["id"].(string); ok {
			c.idIndex[id] = i
		}
	}
	c.lastSave = c.clock()
}

func (c *Collection) debugLog(msg string, doc Doc) {
	if c.logger == nil || !c.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	c.logger.Debug(msg, zap.String("collection", c.name), zap.String("doc", spew.Sdump(doc)))
}

// Count returns the number of documents matching filters.
func (c *Collection) Count(filters Doc) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	positions, err := c.matchPositionsLocked(filters)
	if err != nil {
		return 0, err
	}
	return len(positions), nil
}

// Find runs the filter -> sort -> skip -> limit -> project pipeline and
// returns independent copies of the matching documents (spec §4.3, §9).
func (c *Collection) Find(filters Doc, opts FindOptions) ([]Doc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	positions, err := c.matchPositionsLocked(filters)
	if err != nil {
		return nil, err
	}

	docs := make([]Doc, len(positions))
	for i, p := range positions {
		docs[i] = pipeline.DeepCopyDoc(c.data[p])
	}

	opts.Sort.Apply(docs)
	docs = pipeline.Skip(docs, opts.Skip)
	limit := opts.Limit
	if limit == 0 {
		// The Go zero value means "unset" here, not "return nothing":
		// FindOptions{} with no explicit Limit must behave like the
		// public API's default, which is "all" (spec §4.3).
		limit = pipeline.LimitAll
	}
	docs = pipeline.Limit(docs, limit)

	if len(opts.Projection) > 0 {
		proj := pipeline.CompileProjection(opts.Projection)
		if proj.Mixed {
			c.logger.Warn("liekodb: mixed include/exclude projection ignored", zap.String("collection", c.name))
		}
		for i, d := range docs {
			docs[i] = proj.Apply(d)
		}
	}
	return docs, nil
}

// FindOne returns the first matching document, or (nil, false).
func (c *Collection) FindOne(filters Doc, opts FindOptions) (Doc, bool, error) {
	opts.Limit = 1
	docs, err := c.Find(filters, opts)
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

// FindByID looks a document up by id in O(1) via idIndex.
func (c *Collection) FindByID(id string) (Doc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.idIndex[id]
	if !ok {
		return nil, false
	}
	return pipeline.DeepCopyDoc(c.data[pos]), true
}

// matchPositionsLocked returns the sorted positions in data matching
// filters, consulting and populating the FIFO result cache. Caller must
// hold c.mu.
func (c *Collection) matchPositionsLocked(filters Doc) ([]int, error) {
	if cached, ok := c.resultCache.Get(filters, len(c.data)); ok {
		return cached, nil
	}
	node, err := c.compiledCache.Compile(filters)
	if err != nil {
		return nil, newError(CodeValidation, err.Error())
	}
	var positions []int
	for i, d := range c.data {
		if node.Match(d) {
			positions = append(positions, i)
		}
	}
	c.resultCache.Put(filters, len(c.data), positions)
	return positions, nil
}

// Insert inserts or upserts each document in docs, independently, in
// order (spec §4.5).
func (c *Collection) Insert(docs []Doc) (InsertSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	prefix := batchPrefix(now)
	var insertedIDs []string
	summary := InsertSummary{}

	for i, raw := range docs {
		doc := pipeline.DeepCopyDoc(raw)
		idVal, hasID := doc["id"]
		var id string
		if hasID {
			// A supplied id is used as-is if it's already a string, and
			// coerced to one otherwise (spec §3) so e.g. a JSON-decoded
			// numeric id from the transport layer still upserts by id
			// instead of silently becoming a fresh autogenerated one.
			if s, ok := idVal.(string); ok {
				id = s
			} else {
				id = fmt.Sprint(idVal)
			}
			doc["id"] = id
		}
		if hasID && id != "" {
			if existingPos, exists := c.idIndex[id]; exists {
				if err := c.checkUniqueConflictLocked(doc, existingPos); err != nil {
					c.markDirtyIfMutated(&summary)
					return summary, err
				}
				c.mergeUpsertLocked(existingPos, doc, now)
				summary.UpdatedCount++
				continue
			}
		} else {
			if len(docs) >= 2 {
				id = batchID(prefix, i+1)
			} else {
				id = newAutoID()
			}
			doc["id"] = id
		}

		doc["createdAt"] = formatTime(now)
		doc["updatedAt"] = formatTime(now)

		if err := c.checkUniqueConflictLocked(doc, -1); err != nil {
			c.markDirtyIfMutated(&summary)
			return summary, err
		}

		pos := len(c.data)
		c.data = append(c.data, doc)
		c.idIndex[id] = pos
		for _, idx := range c.indexes {
			idx.insert(doc, pos)
		}
		insertedIDs = append(insertedIDs, id)
		summary.InsertedCount++
		c.debugLog("insert", doc)
	}

	if summary.InsertedCount > 0 || summary.UpdatedCount > 0 {
		c.markDirty()
	}

	if n := len(insertedIDs); n > 0 {
		if n <= 20 {
			summary.IDs = insertedIDs
		} else {
			summary.FirstID = insertedIDs[0]
			summary.LastID = insertedIDs[n-1]
			summary.Prefix = prefix + "_"
		}
	}
	return summary, nil
}

// checkUniqueConflictLocked rejects doc if any unique index's key is
// already held by a position other than selfPos. Pass -1 for a fresh
// insert; pass the document's own current position for an upsert so it
// does not collide with itself.
func (c *Collection) checkUniqueConflictLocked(doc Doc, selfPos int) error {
	for _, idx := range c.indexes {
		if !idx.def.Unique {
			continue
		}
		if idx.hasCollision(doc, selfPos) {
			return newError(CodeConflict, fmt.Sprintf("liekodb: duplicate key for unique index %q", idx.def.Name))
		}
	}
	return nil
}

func (c *Collection) mergeUpsertLocked(pos int, incoming Doc, now time.Time) {
	existing := c.data[pos]
	createdAt := existing["createdAt"]
	for k, v := range incoming {
		if k == "id" || k == "createdAt" || k == "updatedAt" {
			continue
		}
		existing[k] = v
	}
	existing["createdAt"] = createdAt
	existing["updatedAt"] = formatTime(now)

	for _, idx := range c.indexes {
		idx.remove(existing, pos)
	}
	for _, idx := range c.indexes {
		idx.insert(existing, pos)
	}
	c.debugLog("upsert", existing)
}

// Update applies spec to every document matching filters, returning the
// number matched and, if requested, their ids or full documents.
func (c *Collection) Update(filters Doc, spec Doc, opts UpdateOptions) (UpdateSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	positions, err := c.matchPositionsLocked(filters)
	if err != nil {
		return UpdateSummary{}, err
	}
	maxReturn := opts.MaxReturn
	if maxReturn <= 0 {
		maxReturn = defaultMaxReturn
	}

	summary := UpdateSummary{MatchedCount: len(positions)}
	now := c.clock()
	returned := 0
	for _, pos := range positions {
		if err := c.applyUpdateAtLocked(pos, spec, now); err != nil {
			return summary, err
		}
		if !opts.ReturnIDs && !opts.ReturnDocs {
			continue
		}
		if returned >= maxReturn {
			summary.Truncated = true
			continue
		}
		returned++
		id, _ := c.data[pos]["id"].(string)
		if opts.ReturnIDs {
			summary.IDs = append(summary.IDs, id)
		}
		if opts.ReturnDocs {
			summary.Docs = append(summary.Docs, pipeline.DeepCopyDoc(c.data[pos]))
		}
	}
	if len(positions) > 0 {
		c.markDirty()
	}
	return summary, nil
}

func (c *Collection) applyUpdateAtLocked(pos int, spec Doc, now time.Time) error {
	doc := c.data[pos]
	for _, idx := range c.indexes {
		idx.remove(doc, pos)
	}
	if err := update.Apply(doc, spec); err != nil {
		for _, idx := range c.indexes {
			idx.insert(doc, pos)
		}
		return err
	}
	doc["updatedAt"] = formatTime(now)
	for _, idx := range c.indexes {
		idx.insert(doc, pos)
	}
	c.debugLog("update", doc)
	return nil
}

// UpdateByID applies spec to the single document with the given id.
func (c *Collection) UpdateByID(id string, spec Doc, opts UpdateOptions) (Doc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, ok := c.idIndex[id]
	if !ok {
		return nil, newError(CodeNotFound, fmt.Sprintf("liekodb: no document with id %q", id))
	}
	if err := c.applyUpdateAtLocked(pos, spec, c.clock()); err != nil {
		return nil, err
	}
	c.markDirty()
	return pipeline.DeepCopyDoc(c.data[pos]), nil
}

// Delete removes every document matching filters.
func (c *Collection) Delete(filters Doc) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	positions, err := c.matchPositionsLocked(filters)
	if err != nil {
		return 0, err
	}
	if len(positions) == 0 {
		return 0, nil
	}
	sort.Sort(sort.Reverse(sort.IntSlice(positions)))
	for _, pos := range positions {
		c.removeAtLocked(pos)
	}
	c.markDirty()
	return len(positions), nil
}

// DeleteByID removes the single document with the given id.
func (c *Collection) DeleteByID(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.idIndex[id]
	if !ok {
		return newError(CodeNotFound, fmt.Sprintf("liekodb: no document with id %q", id))
	}
	c.removeAtLocked(pos)
	c.markDirty()
	return nil
}

// removeAtLocked splices out data[pos] and renumbers every position at or
// above pos across idIndex and all secondary indexes (spec §4.5,
// "Deletion and positional invariants", strategy (b)).
func (c *Collection) removeAtLocked(pos int) {
	doc := c.data[pos]
	id, _ := doc["id"].(string)

	for _, idx := range c.indexes {
		idx.remove(doc, pos)
		idx.shift(pos)
	}

	delete(c.idIndex, id)
	for otherID, p := range c.idIndex {
		if p >= pos {
			c.idIndex[otherID] = p - 1
		}
	}

	c.data = append(c.data[:pos], c.data[pos+1:]...)
}

// CreateIndex registers a composite secondary index and populates it by
// scanning the current data (spec §4.5).
func (c *Collection) CreateIndex(spec IndexSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := spec.Name
	if name == "" {
		parts := make([]string, len(spec.Fields))
		for i, f := range spec.Fields {
			parts[i] = f.Path
		}
		name = strings.Join(parts, "_")
	}
	if _, exists := c.indexes[name]; exists {
		return newError(CodeConflict, fmt.Sprintf("liekodb: index %q already exists", name))
	}
	spec.Name = name
	idx := newSecondaryIndex(spec)
	if spec.Unique {
		seen := map[interface{}]bool{}
		for _, d := range c.data {
			keys, ok := idx.keysFor(d)
			if !ok {
				continue
			}
			k := fmt.Sprint(keys)
			if seen[k] {
				return newError(CodeConflict, fmt.Sprintf("liekodb: cannot create unique index %q: duplicate key in existing data", name))
			}
			seen[k] = true
		}
	}
	idx.rebuild(c.data)
	c.indexes[name] = idx
	c.markDirty()
	return nil
}

// Drop discards the in-memory state and removes the on-disk snapshot
// (idempotent if absent).
func (c *Collection) Drop() error {
	c.mu.Lock()
	c.data = nil
	c.idIndex = make(map[string]int)
	c.indexes = make(map[string]*secondaryIndex)
	c.resultCache.Invalidate()
	c.mu.Unlock()
	return c.persister.Drop(c.name)
}

// Paginate runs the read pipeline with skip=(page-1)*limit and returns the
// page together with its metadata block (spec §4.5).
func (c *Collection) Paginate(filters Doc, opts PaginateOptions) (Page, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 10
	}

	total, err := c.Count(filters)
	if err != nil {
		return Page{}, err
	}

	skip := (opts.Page - 1) * opts.Limit
	docs, err := c.Find(filters, FindOptions{Sort: opts.Sort, Skip: skip, Limit: opts.Limit})
	if err != nil {
		return Page{}, err
	}

	totalPages := 0
	if opts.Limit > 0 {
		totalPages = (total + opts.Limit - 1) / opts.Limit
	}
	meta := PageMeta{
		Page:       opts.Page,
		Limit:      opts.Limit,
		TotalItems: total,
		TotalPages: totalPages,
		HasPrev:    opts.Page > 1,
		HasNext:    opts.Page < totalPages,
	}
	if meta.HasNext {
		meta.NextPage = opts.Page + 1
	}
	if meta.HasPrev {
		meta.PrevPage = opts.Page - 1
	}
	if len(docs) > 0 {
		meta.StartIndex = skip + 1
		meta.EndIndex = skip + len(docs)
	}
	return Page{Data: docs, Meta: meta}, nil
}

// DistinctValues returns the unique set of resolved values at fieldPath
// across documents matching filters (SPEC_FULL §10 supplement).
func (c *Collection) DistinctValues(fieldPath string, filters Doc) ([]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	positions, err := c.matchPositionsLocked(filters)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []interface{}
	for _, p := range positions {
		v := path.Resolve(c.data[p], fieldPath)
		if path.IsAbsent(v) {
			continue
		}
		key := fmt.Sprint(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out, nil
}

// Stats reports operational status for a collection.
type Stats struct {
	Name     string    `json:"name"`
	Count    int       `json:"count"`
	Dirty    bool      `json:"dirty"`
	LastSave time.Time `json:"lastSave"`
}

// Stats returns the current operational status of the collection.
func (c *Collection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Name: c.name, Count: len(c.data), Dirty: c.dirty, LastSave: c.lastSave}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
