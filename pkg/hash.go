package metacache

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// FileIdOf derives the cache identity for a path. Deterministic, so cached
// pages can always be found again from the path alone.
func FileIdOf(path string) FileId {
	return FileId(fmt.Sprintf("%016x", xxhash.Sum64String(path)))
}

// StatFingerprint builds a content hash from a file's size and modification
// time, for source stores that cannot provide a native one. Any content
// change that bumps either field produces a different fingerprint.
func StatFingerprint(size int64, modTime time.Time) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("%d:%d", size, modTime.UnixNano())))
}
