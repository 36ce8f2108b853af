// Package filter implements the MongoDB-style filter document evaluator:
// logical connectives, per-field operators, and plain equality matches.
//
// A filter document is decoded once into a tree of nodes (Design Note in
// spec §9, "Filter tree as data") so that matching a document against it
// never re-inspects the `$`-prefix shape of the filter itself.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kinfkong/liekodb/internal/compare"
	"github.com/kinfkong/liekodb/internal/path"
)

// Node is a compiled filter: a predicate over a document.
type Node interface {
	Match(doc bson.M) bool
}

type andNode struct{ children []Node }

func (n *andNode) Match(d bson.M) bool {
	for _, c := range n.children {
		if !c.Match(d) {
			return false
		}
	}
	return true
}

type orNode struct{ children []Node }

func (n *orNode) Match(d bson.M) bool {
	for _, c := range n.children {
		if c.Match(d) {
			return true
		}
	}
	return len(n.children) == 0
}

type norNode struct{ children []Node }

func (n *norNode) Match(d bson.M) bool {
	for _, c := range n.children {
		if c.Match(d) {
			return false
		}
	}
	return true
}

type notNode struct{ child Node }

func (n *notNode) Match(d bson.M) bool { return !n.child.Match(d) }

type fieldEqNode struct {
	path string
	val  interface{}
}

func (n *fieldEqNode) Match(d bson.M) bool {
	resolved := path.Resolve(d, n.path)
	if arr, ok := asSlice(resolved); ok {
		if compare.Contains(arr, n.val) {
			return true
		}
	}
	return compare.Equal(resolved, n.val)
}

type fieldOpNode struct {
	path  string
	preds []predicate
}

type predicate func(resolved interface{}) bool

func (n *fieldOpNode) Match(d bson.M) bool {
	resolved := path.Resolve(d, n.path)
	for _, p := range n.preds {
		if !p(resolved) {
			return false
		}
	}
	return true
}

// Compile decodes a filter document into a matchable Node tree.
func Compile(f bson.M) (Node, error) {
	if len(f) == 0 {
		return &andNode{}, nil
	}
	var children []Node
	for k, v := range f {
		switch k {
		case "$and":
			c, err := compileList(v)
			if err != nil {
				return nil, err
			}
			children = append(children, &andNode{children: c})
		case "$or":
			c, err := compileList(v)
			if err != nil {
				return nil, err
			}
			children = append(children, &orNode{children: c})
		case "$nor":
			c, err := compileList(v)
			if err != nil {
				return nil, err
			}
			children = append(children, &norNode{children: c})
		case "$not":
			sub, ok := asDoc(v)
			if !ok {
				return nil, fmt.Errorf("filter: $not requires a document")
			}
			child, err := Compile(sub)
			if err != nil {
				return nil, err
			}
			children = append(children, &notNode{child: child})
		default:
			node, err := compileField(k, v)
			if err != nil {
				return nil, err
			}
			children = append(children, node)
		}
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &andNode{children: children}, nil
}

func compileList(v interface{}) ([]Node, error) {
	arr, ok := asSlice(v)
	if !ok {
		return nil, fmt.Errorf("filter: expected a list of filter documents")
	}
	nodes := make([]Node, 0, len(arr))
	for _, el := range arr {
		sub, ok := asDoc(el)
		if !ok {
			return nil, fmt.Errorf("filter: expected a filter document in list")
		}
		n, err := Compile(sub)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func compileField(key string, v interface{}) (Node, error) {
	if doc, ok := asDoc(v); ok && isOperatorMap(doc) {
		preds, err := compileOperators(doc)
		if err != nil {
			return nil, err
		}
		return &fieldOpNode{path: key, preds: preds}, nil
	}
	return &fieldEqNode{path: key, val: v}, nil
}

func isOperatorMap(m bson.M) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func compileOperators(ops bson.M) ([]predicate, error) {
	var preds []predicate
	options, _ := ops["$options"].(string)
	for op, e := range ops {
		switch op {
		case "$options":
			continue
		case "$eq":
			e := e
			preds = append(preds, func(a interface{}) bool { return matchScalarOrElement(a, e, compare.Equal) })
		case "$ne":
			e := e
			preds = append(preds, func(a interface{}) bool {
				if path.IsAbsent(a) {
					return true
				}
				return !matchScalarOrElement(a, e, compare.Equal)
			})
		case "$gt":
			e := e
			preds = append(preds, func(a interface{}) bool {
				return matchOrdered(a, e, func(c int) bool { return c > 0 })
			})
		case "$gte":
			e := e
			preds = append(preds, func(a interface{}) bool {
				return matchOrdered(a, e, func(c int) bool { return c >= 0 })
			})
		case "$lt":
			e := e
			preds = append(preds, func(a interface{}) bool {
				return matchOrdered(a, e, func(c int) bool { return c < 0 })
			})
		case "$lte":
			e := e
			preds = append(preds, func(a interface{}) bool {
				return matchOrdered(a, e, func(c int) bool { return c <= 0 })
			})
		case "$in":
			list, ok := asSlice(e)
			if !ok {
				return nil, fmt.Errorf("filter: $in requires a list")
			}
			preds = append(preds, func(a interface{}) bool {
				if path.IsAbsent(a) {
					return false
				}
				if arr, isArr := asSlice(a); isArr {
					for _, el := range arr {
						if compare.Contains(list, el) {
							return true
						}
					}
					return false
				}
				return compare.Contains(list, a)
			})
		case "$nin":
			list, ok := asSlice(e)
			if !ok {
				return nil, fmt.Errorf("filter: $nin requires a list")
			}
			preds = append(preds, func(a interface{}) bool {
				if path.IsAbsent(a) {
					return false
				}
				if arr, ok := asSlice(a); ok {
					for _, el := range arr {
						if compare.Contains(list, el) {
							return false
						}
					}
					return true
				}
				return !compare.Contains(list, a)
			})
		case "$exists":
			want, ok := e.(bool)
			if !ok {
				return nil, fmt.Errorf("filter: $exists requires a boolean")
			}
			preds = append(preds, func(a interface{}) bool { return !path.IsAbsent(a) == want })
		case "$regex":
			pattern, ok := e.(string)
			if !ok {
				if rx, ok := e.(*regexp.Regexp); ok {
					preds = append(preds, func(a interface{}) bool { return matchRegex(a, rx) })
					continue
				}
				return nil, fmt.Errorf("filter: $regex requires a string pattern")
			}
			rx, err := compileRegex(pattern, options)
			if err != nil {
				preds = append(preds, func(interface{}) bool { return false })
				continue
			}
			preds = append(preds, func(a interface{}) bool { return matchRegex(a, rx) })
		case "$mod":
			list, ok := asSlice(e)
			if !ok || len(list) != 2 {
				preds = append(preds, func(interface{}) bool { return false })
				continue
			}
			divisor, ok1 := asFloat(list[0])
			remainder, ok2 := asFloat(list[1])
			if !ok1 || !ok2 || divisor == 0 {
				preds = append(preds, func(interface{}) bool { return false })
				continue
			}
			preds = append(preds, func(a interface{}) bool {
				n, ok := asFloat(a)
				if !ok {
					return false
				}
				return int64(n)%int64(divisor) == int64(remainder)
			})
		case "$not":
			sub, ok := asDoc(e)
			if !ok {
				return nil, fmt.Errorf("filter: $not requires an operator document")
			}
			subPreds, err := compileOperators(sub)
			if err != nil {
				return nil, err
			}
			preds = append(preds, func(a interface{}) bool {
				for _, p := range subPreds {
					if !p(a) {
						return true
					}
				}
				return false
			})
		default:
			// Unknown operators are ignored for forward-compatibility.
			continue
		}
	}
	return preds, nil
}

func matchOrdered(a, e interface{}, ok func(int) bool) bool {
	return matchScalarOrElement(a, e, func(x, y interface{}) bool { return ok(compare.Order(x, y)) })
}

func matchScalarOrElement(a, e interface{}, pred func(x, y interface{}) bool) bool {
	if path.IsAbsent(a) {
		return false
	}
	if arr, isArr := asSlice(a); isArr {
		for _, el := range arr {
			if pred(el, e) {
				return true
			}
		}
		return false
	}
	return pred(a, e)
}

func matchRegex(a interface{}, rx *regexp.Regexp) bool {
	if path.IsAbsent(a) {
		return false
	}
	if arr, ok := asSlice(a); ok {
		for _, el := range arr {
			if s, ok := el.(string); ok && rx.MatchString(s) {
				return true
			}
		}
		return false
	}
	s, ok := a.(string)
	if !ok {
		return false
	}
	return rx.MatchString(s)
}

func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	flags := ""
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	return regexp.Compile(pattern)
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

// Match compiles and evaluates f against d in one call, for callers that do
// not need a reusable compiled Node (e.g. one-off internal checks).
func Match(d bson.M, f bson.M) (bool, error) {
	node, err := Compile(f)
	if err != nil {
		return false, err
	}
	return node.Match(d), nil
}
