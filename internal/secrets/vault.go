// Package secrets holds credentials in memory and swaps them atomically when
// their source changes.
package secrets

import (
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
)

// Loader retrieves secrets from a source such as a config value or a file.
type Loader func() (map[string]string, error)

// Vault serves the latest successfully loaded secrets. Readers never block
// a reload.
type Vault struct {
	values atomic.Pointer[map[string]string]
	loader Loader
}

// NewVault loads the initial values; a loader error is fatal here.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	v := &Vault{loader: loader}
	v.values.Store(&vals)
	return v, nil
}

// Get returns the secret for key, or "" when it is not set.
func (v *Vault) Get(key string) string {
	return (*v.values.Load())[key]
}

// Lookup binds key so callers always see the value of the last reload.
func (v *Vault) Lookup(key string) func() string {
	return func() string { return v.Get(key) }
}

// Keys lists the loaded secret names in order.
func (v *Vault) Keys() []string {
	return slices.Sorted(maps.Keys(*v.values.Load()))
}

// Redacted masks a secret for logs: the first two characters survive when
// the value is longer than four.
func (v *Vault) Redacted(key string) string {
	val := v.Get(key)
	switch {
	case val == "":
		return ""
	case len(val) <= 4:
		return "****"
	default:
		return val[:2] + "****"
	}
}

// Reload re-runs the loader and swaps the values in one step. It returns
// the keys that were added, removed or changed. On error the previous
// values stay in place.
func (v *Vault) Reload() (changed []string, err error) {
	next, err := v.loader()
	if err != nil {
		return nil, fmt.Errorf("reload secrets: %w", err)
	}
	prev := *v.values.Swap(&next)

	for k, val := range next {
		if old, ok := prev[k]; !ok || old != val {
			changed = append(changed, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			changed = append(changed, k)
		}
	}
	slices.Sort(changed)
	return changed, nil
}
