package liekodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kinfkong/liekodb/internal/persist"
)

func newTestPersister(t *testing.T) *persist.Manager {
	t.Helper()
	m, err := persist.NewManager(t.TempDir(), 50*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	return m
}

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	return newCollection("widgets", newTestPersister(t), zap.NewNop(), time.Now)
}

func TestInsertAssignsSixteenHexID(t *testing.T) {
	c := newTestCollection(t)
	summary, err := c.Insert([]Doc{{"name": "Alice", "age": 30}})
	require.NoError(t, err)
	require.Equal(t, 1, summary.InsertedCount)
	require.Len(t, summary.IDs, 1)
	require.Len(t, summary.IDs[0], 16)

	docs, err := c.Find(Doc{}, FindOptions{Limit: LimitAllForTest})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, docs[0]["createdAt"], docs[0]["updatedAt"])
}

func TestBatchInsertIDShape(t *testing.T) {
	c := newTestCollection(t)
	docs := make([]Doc, 30)
	for i := range docs {
		docs[i] = Doc{"n": i}
	}
	summary, err := c.Insert(docs)
	require.NoError(t, err)
	require.Equal(t, 30, summary.InsertedCount)
	require.Equal(t, summary.Prefix+"1", summary.FirstID)
	require.Equal(t, summary.Prefix+"30", summary.LastID)

	found, err := c.Find(Doc{}, FindOptions{Limit: LimitAllForTest})
	require.NoError(t, err)
	require.Len(t, found, 30)
	require.Equal(t, 0, found[0]["n"])
	require.Equal(t, 29, found[29]["n"])
}

func TestComplexFilterMatchesExactlyOne(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.Insert([]Doc{
		{"active": true, "score": 1200, "tags": List{"vip", "new"}},
		{"active": false, "score": 1200, "tags": List{"vip"}},
		{"active": true, "score": 500, "tags": List{"vip"}},
		{"active": true, "score": 1500, "tags": List{"regular"}},
		{"active": true, "score": 900, "tags": List{"vip"}},
	})
	require.NoError(t, err)

	filters := Doc{"active": true, "score": Doc{"$gte": 1000}, "tags": "vip"}
	docs, err := c.Find(filters, FindOptions{Limit: LimitAllForTest})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	n, err := c.Count(filters)
	require.NoError(t, err)
	require.Equal(t, len(docs), n)
}

func TestDottedUpdatePreservesOtherFields(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.Insert([]Doc{{"id": "u1", "stats": Doc{"views": 10}, "name": "Alice"}})
	require.NoError(t, err)

	before, ok := c.FindByID("u1")
	require.True(t, ok)

	updated, err := c.UpdateByID("u1", Doc{"$set": Doc{"stats.views": 50}}, UpdateOptions{ReturnDocs: true})
	require.NoError(t, err)
	require.Equal(t, 50, updated["stats"].(Doc)["views"])
	require.Equal(t, "Alice", updated["name"])
	require.Equal(t, before["createdAt"], updated["createdAt"])
	require.NotEqual(t, before["updatedAt"], updated["updatedAt"])
}

func TestUpsertIdempotence(t *testing.T) {
	c := newTestCollection(t)
	s1, err := c.Insert([]Doc{{"id": "u1", "name": "Alice", "score": 100}})
	require.NoError(t, err)
	require.Equal(t, 1, s1.InsertedCount)

	first, ok := c.FindByID("u1")
	require.True(t, ok)

	s2, err := c.Insert([]Doc{{"id": "u1", "name": "Alice Updated", "score": 200}})
	require.NoError(t, err)
	require.Equal(t, 0, s2.InsertedCount)
	require.Equal(t, 1, s2.UpdatedCount)

	second, ok := c.FindByID("u1")
	require.True(t, ok)
	require.Equal(t, "Alice Updated", second["name"])
	require.Equal(t, first["createdAt"], second["createdAt"])

	n, err := c.Count(Doc{})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPaginateBeyondLastPage(t *testing.T) {
	c := newTestCollection(t)
	docs := make([]Doc, 50)
	for i := range docs {
		docs[i] = Doc{"n": i}
	}
	_, err := c.Insert(docs)
	require.NoError(t, err)

	page, err := c.Paginate(Doc{}, PaginateOptions{Page: 999, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, page.Data)
	require.Equal(t, 5, page.Meta.TotalPages)
	require.False(t, page.Meta.HasNext)
	require.True(t, page.Meta.HasPrev)
}

func TestDeleteRenumbersIndexesAndIDIndex(t *testing.T) {
	c := newTestCollection(t)
	require.NoError(t, c.CreateIndex(IndexSpec{Fields: []IndexField{{Path: "tag"}}}))
	_, err := c.Insert([]Doc{
		{"id": "a", "tag": "x"},
		{"id": "b", "tag": "y"},
		{"id": "c", "tag": "x"},
	})
	require.NoError(t, err)

	n, err := c.Delete(Doc{"id": "a"})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	doc, ok := c.FindByID("c")
	require.True(t, ok)
	require.Equal(t, "x", doc["tag"])

	docs, err := c.Find(Doc{"tag": "x"}, FindOptions{Limit: LimitAllForTest})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "c", docs[0]["id"])
}

func TestUniqueIndexRejectsDuplicateOnInsert(t *testing.T) {
	c := newTestCollection(t)
	require.NoError(t, c.CreateIndex(IndexSpec{Fields: []IndexField{{Path: "email"}}, Unique: true}))
	_, err := c.Insert([]Doc{{"email": "a@example.com"}})
	require.NoError(t, err)

	_, err = c.Insert([]Doc{{"email": "a@example.com"}})
	require.Error(t, err)
	verr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, CodeConflict, verr.Code)
}

func TestUniqueIndexAllowsSelfUpsertWithSameKey(t *testing.T) {
	c := newTestCollection(t)
	require.NoError(t, c.CreateIndex(IndexSpec{Fields: []IndexField{{Path: "email"}}, Unique: true}))
	_, err := c.Insert([]Doc{{"id": "u1", "email": "a@example.com", "name": "Alice"}})
	require.NoError(t, err)

	_, err = c.Insert([]Doc{{"id": "u1", "email": "a@example.com", "name": "Alice Updated"}})
	require.NoError(t, err)

	doc, ok := c.FindByID("u1")
	require.True(t, ok)
	require.Equal(t, "Alice Updated", doc["name"])
}

func TestDistinctValues(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.Insert([]Doc{
		{"category": "a"}, {"category": "b"}, {"category": "a"}, {"category": "c"},
	})
	require.NoError(t, err)

	vals, err := c.DistinctValues("category", Doc{})
	require.NoError(t, err)
	require.ElementsMatch(t, []interface{}{"a", "b", "c"}, vals)
}

// LimitAllForTest has the same value as pipeline.LimitAll ("no limit").
const LimitAllForTest = -1
