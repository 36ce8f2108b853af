package filter

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/cespare/xxhash/v2"
	"go.mongodb.org/mongo-driver/bson"
)

// CompiledCache memoizes filter-document -> compiled Node, keyed by a
// canonical hash of the filter's shape. Eviction policy is irrelevant to
// correctness here (a cache miss just recompiles), so an LRU
// (github.com/hashicorp/golang-lru/v2) is used.
type CompiledCache struct {
	lru *lru.Cache[uint64, Node]
}

// NewCompiledCache builds a compiled-filter cache holding up to size entries.
func NewCompiledCache(size int) *CompiledCache {
	c, _ := lru.New[uint64, Node](size)
	return &CompiledCache{lru: c}
}

// Compile returns a compiled Node for f, reusing a cached compilation when
// the filter's canonical shape has been seen before.
func (cc *CompiledCache) Compile(f bson.M) (Node, error) {
	key := CanonicalHash(f)
	if n, ok := cc.lru.Get(key); ok {
		return n, nil
	}
	n, err := Compile(f)
	if err != nil {
		return nil, err
	}
	cc.lru.Add(key, n)
	return n, nil
}

// ResultCache is the bounded, FIFO-evicted (d., spec §4.2.2) cache from
// (canonical filter, dataset size) to a result position list. It is
// invalidated wholesale whenever the owning collection's write epoch
// advances (Design Note in spec §9: "a write bumps the epoch and every
// prior cache entry is lazily ignored").
//
// FIFO, not LRU, is required here: the one general-purpose eviction cache
// available in the dependency set only implements LRU/2Q policies and
// would silently reorder evictions relative to the documented contract, so
// this cache is hand-rolled instead (see DESIGN.md).
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	order    []cacheKey
	entries  map[cacheKey][]int
	epoch    uint64
}

type cacheKey struct {
	hash uint64
	size int
}

// NewResultCache builds a FIFO result cache with the given bounded capacity.
func NewResultCache(capacity int) *ResultCache {
	return &ResultCache{
		capacity: capacity,
		entries:  make(map[cacheKey][]int),
	}
}

// Invalidate bumps the cache epoch; all previously stored entries become
// unreachable (they are simply dropped, not scanned).
func (rc *ResultCache) Invalidate() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.epoch++
	rc.order = nil
	rc.entries = make(map[cacheKey][]int)
}

// Get returns the cached position list for (f, datasetSize), if present.
func (rc *ResultCache) Get(f bson.M, datasetSize int) ([]int, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	k := cacheKey{hash: CanonicalHash(f), size: datasetSize}
	v, ok := rc.entries[k]
	return v, ok
}

// Put stores positions for (f, datasetSize), evicting the oldest entry
// first-in-first-out if the cache is at capacity.
func (rc *ResultCache) Put(f bson.M, datasetSize int, positions []int) {
	if rc.capacity <= 0 {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	k := cacheKey{hash: CanonicalHash(f), size: datasetSize}
	if _, exists := rc.entries[k]; !exists {
		if len(rc.order) >= rc.capacity {
			oldest := rc.order[0]
			rc.order = rc.order[1:]
			delete(rc.entries, oldest)
		}
		rc.order = append(rc.order, k)
	}
	rc.entries[k] = positions
}

// CanonicalHash hashes f deterministically regardless of Go's randomized
// map iteration order, by recursively sorting keys before hashing.
func CanonicalHash(v interface{}) uint64 {
	h := xxhash.New()
	writeCanonical(h, v)
	return h.Sum64()
}

func writeCanonical(h *xxhash.Digest, v interface{}) {
	switch x := v.(type) {
	case bson.M:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		h.Write([]byte("{"))
		for _, k := range keys {
			h.Write([]byte(strconv.Itoa(len(k)) + ":" + k))
			h.Write([]byte(":"))
			writeCanonical(h, x[k])
			h.Write([]byte(","))
		}
		h.Write([]byte("}"))
	case map[string]interface{}:
		writeCanonical(h, bson.M(x))
	case bson.A:
		h.Write([]byte("["))
		for _, el := range x {
			writeCanonical(h, el)
			h.Write([]byte(","))
		}
		h.Write([]byte("]"))
	case []interface{}:
		writeCanonical(h, bson.A(x))
	case string:
		h.Write([]byte("s" + strconv.Itoa(len(x)) + ":" + x))
	case nil:
		h.Write([]byte("n"))
	case bool:
		h.Write([]byte("b:" + strconv.FormatBool(x)))
	case int, int32, int64, float32, float64:
		h.Write([]byte("v:" + strconv.FormatFloat(toFloatOr(x), 'g', -1, 64)))
	default:
		s := fmt.Sprintf("%T:%v", x, x)
		h.Write([]byte("o" + strconv.Itoa(len(s)) + ":" + s))
	}
}

func toFloatOr(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}
