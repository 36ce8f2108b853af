// Package pipeline implements the read-side query pipeline: sort, skip,
// limit, and projection, applied in that fixed order after filtering
// (spec §4.3: filter -> sort -> skip -> limit -> project).
package pipeline

import (
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kinfkong/liekodb/internal/compare"
	"github.com/kinfkong/liekodb/internal/path"
)

// Sort is an ordered list of (field path, direction) pairs; direction is
// +1 for ascending, -1 for descending.
type Sort []SortKey

// SortKey is one field of a compound sort specification.
type SortKey struct {
	Path string
	Dir  int
}

// Apply sorts docs in place (stable) according to s.
func (s Sort) Apply(docs []bson.M) {
	if len(s) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range s {
			a := path.Resolve(docs[i], key.Path)
			b := path.Resolve(docs[j], key.Path)
			c := compare.Order(a, b)
			if c == 0 {
				continue
			}
			if key.Dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Skip drops the first n documents.
func Skip(docs []bson.M, n int) []bson.M {
	if n <= 0 || n >= len(docs) {
		if n >= len(docs) {
			return nil
		}
		return docs
	}
	return docs[n:]
}

// LimitAll is the sentinel Limit value meaning "no limit" (the "all" of
// spec §4.3). Limit is an int; a string such as "all" is not accepted.
const LimitAll = -1

// Limit retains the first n documents, or all of them if n == LimitAll.
func Limit(docs []bson.M, n int) []bson.M {
	if n == LimitAll || n >= len(docs) {
		return docs
	}
	if n <= 0 {
		return nil
	}
	return docs[:n]
}

// Projection is a field-inclusion or field-exclusion spec (spec §4.3).
// Mixing both modes in one projection is unsupported.
type Projection struct {
	Include bool
	Fields  []string
	Mixed   bool
}

// CompileProjection decodes a raw projection document (values 1/true to
// include, 0/false to exclude) into a Projection. A mix of include and
// exclude entries yields Mixed=true and the caller must pass the document
// through unchanged with a warning (spec §4.3, Open Question 3).
func CompileProjection(raw bson.M) Projection {
	if len(raw) == 0 {
		return Projection{}
	}
	var fields []string
	includeSeen, excludeSeen := false, false
	for k, v := range raw {
		fields = append(fields, k)
		if truthy(v) {
			includeSeen = true
		} else {
			excludeSeen = true
		}
	}
	if includeSeen && excludeSeen {
		return Projection{Mixed: true, Fields: fields}
	}
	return Projection{Include: includeSeen, Fields: fields}
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return false
	}
}

// Apply projects doc according to p. A zero-value Projection (no fields)
// or a Mixed projection returns doc unchanged.
func (p Projection) Apply(doc bson.M) bson.M {
	if len(p.Fields) == 0 || p.Mixed {
		return doc
	}
	if p.Include {
		return projectInclude(doc, p.Fields)
	}
	return projectExclude(doc, p.Fields)
}

func projectInclude(doc bson.M, fields []string) bson.M {
	out := bson.M{}
	for _, f := range fields {
		v := path.Resolve(doc, f)
		if path.IsAbsent(v) {
			continue
		}
		out[f] = v
	}
	return out
}

func projectExclude(doc bson.M, fields []string) bson.M {
	out := deepCopy(doc)
	for _, f := range fields {
		deletePath(out, f)
	}
	return out
}

func deletePath(doc bson.M, p string) {
	segs := strings.Split(p, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			return
		}
		m, ok := next.(bson.M)
		if !ok {
			return
		}
		cur = m
	}
	delete(cur, segs[len(segs)-1])
}

func deepCopy(v interface{}) bson.M {
	out := bson.M{}
	if m, ok := v.(bson.M); ok {
		for k, val := range m {
			out[k] = deepCopyValue(val)
		}
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch x := v.(type) {
	case bson.M:
		return deepCopy(x)
	case map[string]interface{}:
		return deepCopy(bson.M(x))
	case bson.A:
		out := make(bson.A, len(x))
		for i, el := range x {
			out[i] = deepCopyValue(el)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, el := range x {
			out[i] = deepCopyValue(el)
		}
		return out
	default:
		return v
	}
}

// DeepCopyDoc returns an independent deep copy of doc, used by read paths
// so external callers cannot mutate collection-owned state (spec §9,
// "Ownership of documents").
func DeepCopyDoc(doc bson.M) bson.M { return deepCopy(doc) }
