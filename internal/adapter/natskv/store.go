// Package natskv implements the state store port on a NATS JetStream
// key-value bucket, so several hosts can share mirror and watchdog state.
package natskv

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/missioncontrol/internal/port/statestore"
)

// Store keeps each state document under its name as a KV key.
type Store struct {
	kv jetstream.KeyValue
}

var _ statestore.Store = (*Store)(nil)

// New wraps an existing bucket.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Load returns the latest revision of a document.
func (s *Store) Load(ctx context.Context, name string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("natskv get %s: %w", name, err)
	}
	return entry.Value(), true, nil
}

// Save writes a new revision of a document.
func (s *Store) Save(ctx context.Context, name string, data []byte) error {
	if _, err := s.kv.Put(ctx, name, data); err != nil {
		return fmt.Errorf("natskv put %s: %w", name, err)
	}
	return nil
}
