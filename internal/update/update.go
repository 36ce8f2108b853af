// Package update applies MongoDB-style update operator documents ($set,
// $unset, $inc, $push, $addToSet, $pull) to a mutable in-memory document,
// including dotted-path mutation.
package update

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kinfkong/liekodb/internal/compare"
)

var knownOperators = map[string]bool{
	"$set": true, "$unset": true, "$inc": true,
	"$push": true, "$addToSet": true, "$pull": true,
}

// IsOperatorSpec reports whether spec is already in operator form (any of
// its top-level keys begins with $), as opposed to a plain replacement
// document.
func IsOperatorSpec(spec bson.M) bool {
	for k := range spec {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

// Apply mutates doc in place according to spec. A plain (non-operator)
// spec is treated as {$set: spec}. Unknown top-level $-operators are
// ignored, as are operators whose payload is not a document and $inc
// amounts that are not numbers. The returned error is always nil.
func Apply(doc bson.M, spec bson.M) error {
	if !IsOperatorSpec(spec) {
		spec = bson.M{"$set": spec}
	}
	for op, payload := range spec {
		body, ok := payload.(bson.M)
		if !ok {
			if m, ok2 := payload.(map[string]interface{}); ok2 {
				body = bson.M(m)
			} else {
				continue
			}
		}
		switch op {
		case "$set":
			for k, v := range body {
				setPath(doc, k, v)
			}
		case "$unset":
			for k := range body {
				unsetPath(doc, k)
			}
		case "$inc":
			for k, v := range body {
				incPath(doc, k, v)
			}
		case "$push":
			for k, v := range body {
				pushPath(doc, k, v)
			}
		case "$addToSet":
			for k, v := range body {
				addToSetPath(doc, k, v)
			}
		case "$pull":
			for k, v := range body {
				pullPath(doc, k, v)
			}
		default:
			// Unknown top-level operator: ignored.
			continue
		}
	}
	return nil
}

func splitPath(p string) []string { return strings.Split(p, ".") }

// navigate walks/creates nested bson.M containers for all but the last
// segment of p, returning the parent container and the final segment.
func navigate(doc bson.M, p string, create bool) (bson.M, string, bool) {
	segs := splitPath(p)
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			if !create {
				return nil, "", false
			}
			nm := bson.M{}
			cur[seg] = nm
			cur = nm
			continue
		}
		switch v := next.(type) {
		case bson.M:
			cur = v
		case map[string]interface{}:
			m := bson.M(v)
			cur[seg] = m
			cur = m
		default:
			if !create {
				return nil, "", false
			}
			nm := bson.M{}
			cur[seg] = nm
			cur = nm
		}
	}
	return cur, segs[len(segs)-1], true
}

func setPath(doc bson.M, p string, v interface{}) {
	parent, leaf, _ := navigate(doc, p, true)
	parent[leaf] = v
}

func unsetPath(doc bson.M, p string) {
	parent, leaf, ok := navigate(doc, p, false)
	if !ok {
		return
	}
	delete(parent, leaf)
}

func incPath(doc bson.M, p string, delta interface{}) {
	parent, leaf, _ := navigate(doc, p, true)
	d, ok := asFloat(delta)
	if !ok {
		return
	}
	cur, ok := asFloat(parent[leaf])
	if !ok {
		cur = 0
	}
	parent[leaf] = cur + d
}

func pushPath(doc bson.M, p string, v interface{}) {
	parent, leaf, _ := navigate(doc, p, true)
	arr, ok := asSlice(parent[leaf])
	if !ok {
		arr = nil
	}
	parent[leaf] = append(arr, v)
}

func addToSetPath(doc bson.M, p string, v interface{}) {
	parent, leaf, _ := navigate(doc, p, true)
	arr, ok := asSlice(parent[leaf])
	if !ok {
		arr = nil
	}

	values := []interface{}{v}
	if each, ok := asEach(v); ok {
		values = each
	}
	for _, val := range values {
		if !compare.Contains(bson.A(arr), val) {
			arr = append(arr, val)
		}
	}
	parent[leaf] = arr
}

func pullPath(doc bson.M, p string, v interface{}) {
	parent, leaf, ok := navigate(doc, p, false)
	if !ok {
		return
	}
	arr, ok := asSlice(parent[leaf])
	if !ok {
		return
	}

	var toRemove func(el interface{}) bool
	if inList, ok := asIn(v); ok {
		toRemove = func(el interface{}) bool { return compare.Contains(bson.A(inList), el) }
	} else {
		toRemove = func(el interface{}) bool { return compare.Equal(el, v) }
	}

	kept := arr[:0:0]
	for _, el := range arr {
		if !toRemove(el) {
			kept = append(kept, el)
		}
	}
	parent[leaf] = kept
}

func asEach(v interface{}) ([]interface{}, bool) {
	m, ok := asDoc(v)
	if !ok {
		return nil, false
	}
	each, ok := m["$each"]
	if !ok {
		return nil, false
	}
	return asSlice(each)
}

func asIn(v interface{}) ([]interface{}, bool) {
	m, ok := asDoc(v)
	if !ok {
		return nil, false
	}
	in, ok := m["$in"]
	if !ok {
		return nil, false
	}
	return asSlice(in)
}

func asDoc(v interface{}) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]interface{}:
		return bson.M(m), true
	default:
		return nil, false
	}
}

func asSlice(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case bson.A:
		return []interface{}(a), true
	case []interface{}:
		return a, true
	default:
		return nil, false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
