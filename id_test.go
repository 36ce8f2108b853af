package liekodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAutoIDIsSixteenHexChars(t *testing.T) {
	id := newAutoID()
	require.Len(t, id, 16)
	for _, r := range id {
		require.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'))
	}
}

func TestNewAutoIDIsUnique(t *testing.T) {
	require.NotEqual(t, newAutoID(), newAutoID())
}

func TestBatchIDFormat(t *testing.T) {
	prefix := batchPrefix(time.Unix(0, 0))
	require.Equal(t, prefix+"_1", batchID(prefix, 1))
	require.Equal(t, prefix+"_30", batchID(prefix, 30))
}
