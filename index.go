package liekodb

import "github.com/kinfkong/liekodb/internal/path"

// IndexField is one field of a composite secondary index key, with a
// declared direction (reserved for future ordered traversal; equality
// lookup does not use it, per spec §3).
type IndexField struct {
	Path string
	Dir  int
}

// IndexSpec describes a secondary index to create.
type IndexSpec struct {
	Name   string
	Fields []IndexField
	Unique bool
}

// secondaryIndex is conceptually a nested mapping value(f1) -> value(f2)
// -> ... -> list of positions in data (spec §3). It is implemented as a
// recursive map so that arbitrarily deep composite keys are supported
// without representing each arity as a distinct Go type.
type secondaryIndex struct {
	def  IndexSpec
	root map[interface{}]interface{}
}

func newSecondaryIndex(def IndexSpec) *secondaryIndex {
	return &secondaryIndex{def: def, root: map[interface{}]interface{}{}}
}

func (si *secondaryIndex) keysFor(doc Doc) ([]interface{}, bool) {
	keys := make([]interface{}, len(si.def.Fields))
	for i, f := range si.def.Fields {
		v := path.Resolve(doc, f.Path)
		if path.IsAbsent(v) {
			return nil, false
		}
		keys[i] = normalizeIndexKey(v)
	}
	return keys, true
}

func normalizeIndexKey(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// insert records pos under doc's indexed keys. Documents missing any
// indexed field are simply absent from the index (spec §3, invariant b).
func (si *secondaryIndex) insert(doc Doc, pos int) {
	keys, ok := si.keysFor(doc)
	if !ok {
		return
	}
	insertAt(si.root, keys, pos)
}

func insertAt(level map[interface{}]interface{}, keys []interface{}, pos int) {
	k := keys[0]
	if len(keys) == 1 {
		existing, _ := level[k].([]int)
		level[k] = append(existing, pos)
		return
	}
	next, ok := level[k].(map[interface{}]interface{})
	if !ok {
		next = map[interface{}]interface{}{}
		level[k] = next
	}
	insertAt(next, keys[1:], pos)
}

// remove drops pos from doc's indexed keys.
func (si *secondaryIndex) remove(doc Doc, pos int) {
	keys, ok := si.keysFor(doc)
	if !ok {
		return
	}
	removeAt(si.root, keys, pos)
}

func removeAt(level map[interface{}]interface{}, keys []interface{}, pos int) {
	k := keys[0]
	if len(keys) == 1 {
		positions, ok := level[k].([]int)
		if !ok {
			return
		}
		out := positions[:0]
		for _, p := range positions {
			if p != pos {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			delete(level, k)
		} else {
			level[k] = out
		}
		return
	}
	next, ok := level[k].(map[interface{}]interface{})
	if !ok {
		return
	}
	removeAt(next, keys[1:], pos)
}

// shift decrements every recorded position >= from (used after a
// splice-out delete renumbers positions in data).
func (si *secondaryIndex) shift(from int) { shiftLevel(si.root, from) }

func shiftLevel(level map[interface{}]interface{}, from int) {
	for k, v := range level {
		switch val := v.(type) {
		case []int:
			for i, p := range val {
				if p >= from {
					val[i] = p - 1
				}
			}
			level[k] = val
		case map[interface{}]interface{}:
			shiftLevel(val, from)
		}
	}
}

// hasCollision reports whether doc's indexed key already has a recorded
// position other than excludePos, used to enforce a unique index
// (SPEC_FULL §10). excludePos lets an upsert re-check its own prior
// position without tripping over itself; pass -1 for a fresh insert.
func (si *secondaryIndex) hasCollision(doc Doc, excludePos int) bool {
	keys, ok := si.keysFor(doc)
	if !ok {
		return false
	}
	level := si.root
	for i, k := range keys {
		if i == len(keys)-1 {
			positions, _ := level[k].([]int)
			for _, p := range positions {
				if p != excludePos {
					return true
				}
			}
			return false
		}
		next, ok := level[k].(map[interface{}]interface{})
		if !ok {
			return false
		}
		level = next
	}
	return false
}

// rebuild clears and repopulates the index by scanning data.
func (si *secondaryIndex) rebuild(data []Doc) {
	si.root = map[interface{}]interface{}{}
	for pos, doc := range data {
		si.insert(doc, pos)
	}
}
