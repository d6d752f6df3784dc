package jsonstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFile is the advisory lock taken on the state directory.
const LockFile = "missioncontrol.lock"

// ErrLocked reports that another process holds the state directory.
var ErrLocked = errors.New("state directory is locked by another missioncontrol process")

// Lock takes the single-writer lock on dir without blocking. The returned
// function releases it.
func Lock(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	fileLock := flock.New(filepath.Join(dir, LockFile))

	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire state lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return func() { _ = fileLock.Unlock() }, nil
}
