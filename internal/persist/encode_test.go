package persist_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kinfkong/liekodb/internal/persist"
)

func TestEncodeSnapshotCanonicalFieldOrder(t *testing.T) {
	docs := []bson.M{
		{"zebra": 1, "id": "x1", "apple": 2, "createdAt": "t0", "updatedAt": "t1"},
	}
	data, err := persist.EncodeSnapshot(docs)
	require.NoError(t, err)

	idPos := indexOf(t, string(data), `"id"`)
	applePos := indexOf(t, string(data), `"apple"`)
	zebraPos := indexOf(t, string(data), `"zebra"`)
	createdPos := indexOf(t, string(data), `"createdAt"`)
	updatedPos := indexOf(t, string(data), `"updatedAt"`)

	require.Less(t, idPos, applePos)
	require.Less(t, applePos, zebraPos)
	require.Less(t, zebraPos, createdPos)
	require.Less(t, createdPos, updatedPos)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	docs := []bson.M{
		{"id": "a", "n": float64(1), "tags": bson.A{"x", "y"}},
		{"id": "b", "n": float64(2)},
	}
	data, err := persist.EncodeSnapshot(docs)
	require.NoError(t, err)

	got, err := persist.DecodeSnapshot(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0]["id"])
	require.Equal(t, float64(1), got[0]["n"])
	// JSON decoding yields plain []interface{} rather than bson.A; both
	// are accepted uniformly by internal/path, internal/compare, and
	// internal/filter.
	require.Equal(t, []interface{}{"x", "y"}, got[0]["tags"])
}

func TestEncodeEmptySnapshot(t *testing.T) {
	data, err := persist.EncodeSnapshot(nil)
	require.NoError(t, err)
	got, err := persist.DecodeSnapshot(data)
	require.NoError(t, err)
	require.Empty(t, got)
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	t.Fatalf("expected %q to contain %q", haystack, needle)
	return -1
}
