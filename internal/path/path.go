// Package path resolves dotted field paths against heterogeneous documents.
package path

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// absentType is the type of Absent, distinct from a stored nil.
type absentType struct{}

// Absent is returned by Resolve when a path has no value in a document.
var Absent = absentType{}

// IsAbsent reports whether v is the Absent sentinel.
func IsAbsent(v interface{}) bool {
	_, ok := v.(absentType)
	return ok
}

// Resolve walks p (dot-joined field segments) against d and returns the
// value found, or Absent. Arrays are traversed either by numeric index or,
// when the segment is not an index, by broadcasting the remaining sub-path
// across every element and collecting the non-absent results into a
// synthetic array (flattening one level of nested arrays).
func Resolve(d interface{}, p string) interface{} {
	if !strings.Contains(p, ".") {
		return resolveField(d, p)
	}
	segments := strings.Split(p, ".")
	return resolveSegments(d, segments)
}

func resolveField(d interface{}, field string) interface{} {
	switch v := d.(type) {
	case bson.M:
		if val, ok := v[field]; ok {
			return val
		}
		return Absent
	case map[string]interface{}:
		if val, ok := v[field]; ok {
			return val
		}
		return Absent
	default:
		return Absent
	}
}

func resolveSegments(cur interface{}, segs []string) interface{} {
	if len(segs) == 0 {
		return cur
	}
	seg := segs[0]
	rest := segs[1:]

	switch v := cur.(type) {
	case bson.M:
		next, ok := v[seg]
		if !ok {
			return Absent
		}
		if len(rest) == 0 {
			return next
		}
		return resolveSegments(next, rest)
	case map[string]interface{}:
		next, ok := v[seg]
		if !ok {
			return Absent
		}
		if len(rest) == 0 {
			return next
		}
		return resolveSegments(next, rest)
	case bson.A:
		return resolveArray(v, seg, rest)
	case []interface{}:
		return resolveArray(v, seg, rest)
	default:
		return Absent
	}
}

func resolveArray(arr []interface{}, seg string, rest []string) interface{} {
	if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 {
		if idx >= len(arr) {
			return Absent
		}
		if len(rest) == 0 {
			return arr[idx]
		}
		return resolveSegments(arr[idx], rest)
	}

	subSegs := append([]string{seg}, rest...)
	var collected []interface{}
	for _, el := range arr {
		sub := resolveSegments(el, subSegs)
		if IsAbsent(sub) {
			continue
		}
		if nested, ok := asArray(sub); ok {
			collected = append(collected, nested...)
		} else {
			collected = append(collected, sub)
		}
	}
	if len(collected) == 0 {
		return Absent
	}
	return collected
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case bson.A:
		return []interface{}(a), true
	case []interface{}:
		return a, true
	default:
		return nil, false
	}
}
