package filter_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kinfkong/liekodb/internal/filter"
)

func TestCanonicalHashIgnoresKeyOrder(t *testing.T) {
	a := bson.M{"x": 1, "y": 2}
	b := bson.M{"y": 2, "x": 1}
	require.Equal(t, filter.CanonicalHash(a), filter.CanonicalHash(b))
}

func TestCanonicalHashDiffersOnValue(t *testing.T) {
	a := bson.M{"x": 1}
	b := bson.M{"x": 2}
	require.NotEqual(t, filter.CanonicalHash(a), filter.CanonicalHash(b))
}

func TestResultCacheFIFOEviction(t *testing.T) {
	rc := filter.NewResultCache(2)
	rc.Put(bson.M{"a": 1}, 10, []int{1})
	rc.Put(bson.M{"a": 2}, 10, []int{2})
	rc.Put(bson.M{"a": 3}, 10, []int{3}) // evicts {a:1}

	_, ok := rc.Get(bson.M{"a": 1}, 10)
	require.False(t, ok)

	v, ok := rc.Get(bson.M{"a": 2}, 10)
	require.True(t, ok)
	require.Equal(t, []int{2}, v)

	v, ok = rc.Get(bson.M{"a": 3}, 10)
	require.True(t, ok)
	require.Equal(t, []int{3}, v)
}

func TestResultCacheInvalidate(t *testing.T) {
	rc := filter.NewResultCache(10)
	rc.Put(bson.M{"a": 1}, 5, []int{0, 1})
	rc.Invalidate()
	_, ok := rc.Get(bson.M{"a": 1}, 5)
	require.False(t, ok)
}

func TestCompiledCacheReusesNode(t *testing.T) {
	cc := filter.NewCompiledCache(10)
	n1, err := cc.Compile(bson.M{"a": 1})
	require.NoError(t, err)
	n2, err := cc.Compile(bson.M{"a": 1})
	require.NoError(t, err)
	require.Same(t, n1, n2)
	require.True(t, n1.Match(bson.M{"a": 1}))
	require.True(t, n2.Match(bson.M{"a": 1}))
}
