// Package compare provides structural equality and a stable total order
// over heterogeneous document values, used by both the filter evaluator
// (range operators) and the sort stage of the query pipeline.
package compare

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// typeRank assigns the sort stage's "implementation-defined but stable" order
// between value kinds: null < bool < number < string < array < object.
func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int32, int64, float32, float64:
		return 2
	case string:
		return 3
	case bson.A, []interface{}:
		return 4
	case bson.M, map[string]interface{}:
		return 5
	default:
		return 6
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

// Order returns -1, 0, or 1 comparing a to b under the stable total order
// described in spec §4.3: same-type values compare natively, and values of
// different kinds compare by type rank.
func Order(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		return 0
	case 1:
		ab, bb := a.(bool), b.(bool)
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1
	case 2:
		af, _ := asFloat(a)
		bf, _ := asFloat(b)
		if af < bf {
			return -1
		}
		if af > bf {
			return 1
		}
		return 0
	case 3:
		as, bs := a.(string), b.(string)
		if as < bs {
			return -1
		}
		if as > bs {
			return 1
		}
		return 0
	case 4:
		aa, _ := toSlice(a)
		ba, _ := toSlice(b)
		n := len(aa)
		if len(ba) < n {
			n = len(ba)
		}
		for i := 0; i < n; i++ {
			if c := Order(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		if len(aa) < len(ba) {
			return -1
		}
		if len(aa) > len(ba) {
			return 1
		}
		return 0
	default:
		// Objects (and kinds outside the rank table) have no natural
		// ordering: structurally equal values compare as 0, others by
		// their fmt rendering, which lists map keys in sorted order.
		if Equal(a, b) {
			return 0
		}
		as, bs := fmt.Sprint(a), fmt.Sprint(b)
		if as < bs {
			return -1
		}
		if as > bs {
			return 1
		}
		return 0
	}
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case bson.A:
		return []interface{}(a), true
	case []interface{}:
		return a, true
	default:
		return nil, false
	}
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case bson.M:
		return map[string]interface{}(m), true
	case map[string]interface{}:
		return m, true
	default:
		return nil, false
	}
}

// Equal reports deep structural equality: scalars by value, arrays
// element-wise and order-sensitive, objects by key-set and value.
func Equal(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	if aa, ok := toSlice(a); ok {
		ba, ok := toSlice(b)
		if !ok || len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !Equal(aa[i], ba[i]) {
				return false
			}
		}
		return true
	}
	if am, ok := toMap(a); ok {
		bm, ok := toMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			bv, ok := bm[k]
			if !ok || !Equal(v, bv) {
				return false
			}
		}
		return true
	}
	return a == b
}

// Contains reports whether list (an array-valued document field) contains
// target by Equal.
func Contains(list interface{}, target interface{}) bool {
	arr, ok := toSlice(list)
	if !ok {
		return false
	}
	for _, el := range arr {
		if Equal(el, target) {
			return true
		}
	}
	return false
}
