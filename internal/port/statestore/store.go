// Package statestore defines the port for Mission Control's small persisted
// JSON documents (mirror and watchdog state).
package statestore

import "context"

// Document names.
const (
	MirrorState   = "mirror-state.json"
	WatchdogState = "watchdog-state.json"
)

// Store reads and writes whole documents by name. Load reports ok=false,
// with a nil error, for a document that was never written.
type Store interface {
	Load(ctx context.Context, name string) (data []byte, ok bool, err error)
	Save(ctx context.Context, name string, data []byte) error
}
