package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kinfkong/liekodb/internal/pipeline"
)

func TestSortAscendingDescending(t *testing.T) {
	docs := []bson.M{
		{"n": 3}, {"n": 1}, {"n": 2},
	}
	pipeline.Sort{{Path: "n", Dir: 1}}.Apply(docs)
	require.Equal(t, []bson.M{{"n": 1}, {"n": 2}, {"n": 3}}, docs)

	pipeline.Sort{{Path: "n", Dir: -1}}.Apply(docs)
	require.Equal(t, []bson.M{{"n": 3}, {"n": 2}, {"n": 1}}, docs)
}

func TestSortCompoundKeys(t *testing.T) {
	docs := []bson.M{
		{"a": 1, "b": 2},
		{"a": 1, "b": 1},
		{"a": 0, "b": 9},
	}
	pipeline.Sort{{Path: "a", Dir: 1}, {Path: "b", Dir: 1}}.Apply(docs)
	require.Equal(t, 0, docs[0]["a"])
	require.Equal(t, 1, docs[1]["b"])
	require.Equal(t, 2, docs[2]["b"])
}

func TestSkipAndLimit(t *testing.T) {
	docs := []bson.M{{"n": 1}, {"n": 2}, {"n": 3}, {"n": 4}}
	got := pipeline.Limit(pipeline.Skip(docs, 1), 2)
	require.Equal(t, []bson.M{{"n": 2}, {"n": 3}}, got)
}

func TestLimitAll(t *testing.T) {
	docs := []bson.M{{"n": 1}, {"n": 2}}
	got := pipeline.Limit(docs, pipeline.LimitAll)
	require.Equal(t, docs, got)
}

func TestSkipBeyondLengthYieldsEmpty(t *testing.T) {
	docs := []bson.M{{"n": 1}}
	require.Empty(t, pipeline.Skip(docs, 5))
}

func TestProjectionInclude(t *testing.T) {
	p := pipeline.CompileProjection(bson.M{"name": 1})
	doc := bson.M{"id": "1", "name": "Alice", "age": 30}
	got := p.Apply(doc)
	require.Equal(t, bson.M{"name": "Alice"}, got)
}

func TestProjectionExclude(t *testing.T) {
	p := pipeline.CompileProjection(bson.M{"age": 0})
	doc := bson.M{"id": "1", "name": "Alice", "age": 30}
	got := p.Apply(doc)
	require.Equal(t, bson.M{"id": "1", "name": "Alice"}, got)
}

func TestProjectionExcludeDoesNotMutateSource(t *testing.T) {
	p := pipeline.CompileProjection(bson.M{"age": 0})
	doc := bson.M{"id": "1", "age": 30}
	p.Apply(doc)
	require.Equal(t, 30, doc["age"])
}

func TestMixedProjectionReturnsUnchanged(t *testing.T) {
	p := pipeline.CompileProjection(bson.M{"name": 1, "age": 0})
	require.True(t, p.Mixed)
	doc := bson.M{"id": "1", "name": "Alice", "age": 30}
	got := p.Apply(doc)
	require.Equal(t, doc, got)
}

func TestDeepCopyIsIndependent(t *testing.T) {
	doc := bson.M{"tags": bson.A{"a", "b"}}
	cp := pipeline.DeepCopyDoc(doc)
	cp["tags"].(bson.A)[0] = "z"
	require.Equal(t, "a", doc["tags"].(bson.A)[0])
}
