package persist_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/kinfkong/liekodb/internal/persist"
)

func TestArmDebouncesAndWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	m, err := persist.NewManager(dir, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	calls := 0
	done := make(chan struct{}, 1)
	m.Register("widgets", func() []bson.M {
		calls++
		return []bson.M{{"id": "a"}}
	}, func(savedAt time.Time, err error) {
		require.NoError(t, err)
		select {
		case done <- struct{}{}:
		default:
		}
	})

	m.Arm("widgets")
	m.Arm("widgets") // re-arming before it fires should not double-write

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for debounced save")
	}

	require.Equal(t, 1, calls)
	_, err = os.Stat(filepath.Join(dir, "widgets.json"))
	require.NoError(t, err)
}

func TestLoadMissingSnapshotReturnsNil(t *testing.T) {
	m, err := persist.NewManager(t.TempDir(), time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	docs, err := m.Load("nonexistent")
	require.NoError(t, err)
	require.Nil(t, docs)
}

func TestFlushWritesAllRegisteredCollections(t *testing.T) {
	dir := t.TempDir()
	m, err := persist.NewManager(dir, time.Hour, zap.NewNop())
	require.NoError(t, err)

	m.Register("a", func() []bson.M { return []bson.M{{"id": "1"}} }, nil)
	m.Register("b", func() []bson.M { return []bson.M{{"id": "2"}} }, nil)

	require.NoError(t, m.Flush(context.Background()))

	for _, name := range []string{"a", "b"} {
		_, err := os.Stat(filepath.Join(dir, name+".json"))
		require.NoError(t, err)
	}
}

func TestDropRemovesSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	m, err := persist.NewManager(dir, time.Hour, zap.NewNop())
	require.NoError(t, err)

	m.Register("widgets", func() []bson.M { return []bson.M{{"id": "1"}} }, nil)
	require.NoError(t, m.Flush(context.Background()))

	require.NoError(t, m.Drop("widgets"))
	_, err = os.Stat(filepath.Join(dir, "widgets.json"))
	require.True(t, os.IsNotExist(err))
}

func TestCloseFlushesThenRejectsFurtherArms(t *testing.T) {
	dir := t.TempDir()
	m, err := persist.NewManager(dir, time.Hour, zap.NewNop())
	require.NoError(t, err)

	m.Register("widgets", func() []bson.M { return []bson.M{{"id": "1"}} }, nil)
	require.NoError(t, m.Close(context.Background()))

	_, err = os.Stat(filepath.Join(dir, "widgets.json"))
	require.NoError(t, err)

	// Arm after close must not panic or schedule a write.
	m.Arm("widgets")
}
