package filter_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kinfkong/liekodb/internal/filter"
)

func matches(t *testing.T, d, f bson.M) bool {
	t.Helper()
	ok, err := filter.Match(d, f)
	require.NoError(t, err)
	return ok
}

func TestEmptyFilterMatchesEverything(t *testing.T) {
	require.True(t, matches(t, bson.M{"a": 1}, bson.M{}))
}

func TestPlainEquality(t *testing.T) {
	d := bson.M{"name": "Alice"}
	require.True(t, matches(t, d, bson.M{"name": "Alice"}))
	require.False(t, matches(t, d, bson.M{"name": "Bob"}))
}

func TestArrayContainsEquality(t *testing.T) {
	d := bson.M{"tags": bson.A{"vip", "new"}}
	require.True(t, matches(t, d, bson.M{"tags": "vip"}))
	require.False(t, matches(t, d, bson.M{"tags": "gold"}))
}

func TestComplexFilterAcrossFieldsAndArrays(t *testing.T) {
	seed := []bson.M{
		{"active": true, "score": 1200, "tags": bson.A{"vip"}},
		{"active": false, "score": 1200, "tags": bson.A{"vip"}},
		{"active": true, "score": 500, "tags": bson.A{"vip"}},
		{"active": true, "score": 1200, "tags": bson.A{"regular"}},
		{"active": true, "score": 1200, "tags": bson.A{"vip", "extra"}},
	}
	f := bson.M{"active": true, "score": bson.M{"$gte": 1000}, "tags": "vip"}
	matched := 0
	for _, d := range seed {
		if matches(t, d, f) {
			matched++
		}
	}
	require.Equal(t, 2, matched) // doc 0 and doc 4 both qualify
}

func TestLogicalConnectives(t *testing.T) {
	d := bson.M{"a": 1, "b": 2}
	require.True(t, matches(t, d, bson.M{"$and": bson.A{bson.M{"a": 1}, bson.M{"b": 2}}}))
	require.False(t, matches(t, d, bson.M{"$and": bson.A{bson.M{"a": 1}, bson.M{"b": 3}}}))
	require.True(t, matches(t, d, bson.M{"$or": bson.A{bson.M{"a": 9}, bson.M{"b": 2}}}))
	require.True(t, matches(t, d, bson.M{"$nor": bson.A{bson.M{"a": 9}, bson.M{"b": 9}}}))
	require.True(t, matches(t, d, bson.M{"$not": bson.M{"a": 9}}))
}

func TestExistsOperator(t *testing.T) {
	d := bson.M{"a": 1}
	require.True(t, matches(t, d, bson.M{"a": bson.M{"$exists": true}}))
	require.True(t, matches(t, d, bson.M{"b": bson.M{"$exists": false}}))
	require.False(t, matches(t, d, bson.M{"b": bson.M{"$exists": true}}))
}

func TestNeMatchesWhenAbsent(t *testing.T) {
	d := bson.M{"a": 1}
	require.True(t, matches(t, d, bson.M{"b": bson.M{"$ne": 5}}))
}

func TestRangeOperators(t *testing.T) {
	d := bson.M{"score": 50}
	require.True(t, matches(t, d, bson.M{"score": bson.M{"$gte": 50, "$lte": 100}}))
	require.False(t, matches(t, d, bson.M{"score": bson.M{"$gt": 50}}))
}

func TestInNin(t *testing.T) {
	d := bson.M{"status": "active"}
	require.True(t, matches(t, d, bson.M{"status": bson.M{"$in": bson.A{"active", "pending"}}}))
	require.True(t, matches(t, d, bson.M{"status": bson.M{"$nin": bson.A{"banned"}}}))
	require.False(t, matches(t, d, bson.M{"status": bson.M{"$nin": bson.A{"active"}}}))
}

func TestRegexWithOptions(t *testing.T) {
	d := bson.M{"name": "Alice"}
	require.True(t, matches(t, d, bson.M{"name": bson.M{"$regex": "^alice$", "$options": "i"}}))
	require.False(t, matches(t, d, bson.M{"name": bson.M{"$regex": "^bob$"}}))
}

func TestMod(t *testing.T) {
	d := bson.M{"n": 10}
	require.True(t, matches(t, d, bson.M{"n": bson.M{"$mod": bson.A{3, 1}}}))
	require.False(t, matches(t, d, bson.M{"n": bson.M{"$mod": bson.A{3, 2}}}))
}

func TestMalformedModNonMatch(t *testing.T) {
	d := bson.M{"n": 10}
	require.False(t, matches(t, d, bson.M{"n": bson.M{"$mod": bson.A{3}}}))
}

func TestDottedPathFilter(t *testing.T) {
	d := bson.M{"stats": bson.M{"views": 50}}
	require.True(t, matches(t, d, bson.M{"stats.views": 50}))
}

func TestUnknownOperatorIgnored(t *testing.T) {
	d := bson.M{"a": 1}
	require.True(t, matches(t, d, bson.M{"a": bson.M{"$unknownOp": 1, "$eq": 1}}))
}
