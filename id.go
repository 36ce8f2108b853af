package liekodb

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newAutoID returns a 16-hex-digit random id from a cryptographic source,
// used for a single auto-assigned insert (spec §3, "Id allocation").
//
// uuid.New() is the corpus's own id-generation dependency (used by both
// zmux-server and boss-raid-game); its 32 hex digits are trimmed to the 16
// the spec calls for instead of reaching for raw crypto/rand, which would
// duplicate what the dependency already provides.
func newAutoID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return raw[:16]
}

// batchPrefix derives the short, monotonically-varying token used to build
// sequential ids for a multi-document insert: a base-36 encoding of the
// current wall-clock millisecond timestamp.
func batchPrefix(now time.Time) string {
	ms := now.UnixMilli()
	return strconv.FormatInt(ms, 36)
}

// batchID returns the kth (1-based) id in a batch insert sharing prefix.
func batchID(prefix string, k int) string {
	return fmt.Sprintf("%s_%d", prefix, k)
}

