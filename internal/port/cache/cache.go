// Package cache defines the port for memoizing the model declared in each
// session transcript.
package cache

import (
	"io/fs"
	"time"
)

// Stamp identifies one version of a transcript. Appending to the file
// changes it.
type Stamp struct {
	Size    int64
	ModTime time.Time
}

// StampOf returns the stamp of a stat result.
func StampOf(info fs.FileInfo) Stamp {
	return Stamp{Size: info.Size(), ModTime: info.ModTime()}
}

// Entry is the model found in one version of a transcript. An empty Model
// records that the scan found none.
type Entry struct {
	Stamp Stamp
	Model string
}

// ModelCache stores entries keyed by transcript path. Implementations may
// evict at any time and may make stores visible asynchronously.
type ModelCache interface {
	Lookup(path string) (Entry, bool)
	Store(path string, e Entry)
}

// Fresh returns the cached model for path when it was recorded for stamp.
// A nil cache always misses.
func Fresh(c ModelCache, path string, stamp Stamp) (string, bool) {
	if c == nil {
		return "", false
	}
	e, ok := c.Lookup(path)
	if !ok || !e.Stamp.ModTime.Equal(stamp.ModTime) || e.Stamp.Size != stamp.Size {
		return "", false
	}
	return e.Model, true
}
