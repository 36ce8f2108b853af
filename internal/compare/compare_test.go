package compare_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kinfkong/liekodb/internal/compare"
)

func TestOrderNumbersAcrossTypes(t *testing.T) {
	require.Equal(t, -1, compare.Order(1, int64(2)))
	require.Equal(t, 0, compare.Order(float32(3), 3))
	require.Equal(t, 1, compare.Order(5.0, 4))
}

func TestOrderRanksByTypeWhenKindsDiffer(t *testing.T) {
	require.Equal(t, -1, compare.Order(nil, false))
	require.Equal(t, -1, compare.Order(true, 1))
	require.Equal(t, -1, compare.Order(1, "a"))
	require.Equal(t, -1, compare.Order("a", bson.A{1}))
	require.Equal(t, -1, compare.Order(bson.A{1}, bson.M{"a": 1}))
}

func TestOrderArraysLexicographic(t *testing.T) {
	require.Equal(t, -1, compare.Order(bson.A{1, 2}, bson.A{1, 3}))
	require.Equal(t, -1, compare.Order(bson.A{1}, bson.A{1, 2}))
	require.Equal(t, 0, compare.Order(bson.A{1, 2}, []interface{}{1, 2}))
}

func TestEqualDeepStructural(t *testing.T) {
	require.True(t, compare.Equal(bson.M{"a": 1, "b": bson.A{1, 2}}, map[string]interface{}{"a": 1, "b": []interface{}{1, 2}}))
	require.False(t, compare.Equal(bson.M{"a": 1}, bson.M{"a": 2}))
	require.True(t, compare.Equal(1, 1.0))
}

func TestContains(t *testing.T) {
	require.True(t, compare.Contains(bson.A{"vip", "new"}, "vip"))
	require.False(t, compare.Contains(bson.A{"vip"}, "regular"))
	require.False(t, compare.Contains("not-a-list", "x"))
}
