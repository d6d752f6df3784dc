package notifier

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Settings are the string options of one provider, e.g. "webhook_url".
type Settings map[string]string

// Factory builds a Notifier from its settings. It returns ErrNotConfigured
// when the settings leave the provider switched off.
type Factory func(Settings) (Notifier, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a provider available by name. Adapters call it from
// init(); registering a name twice panics.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("notifier: %q registered twice", name))
	}
	factories[name] = factory
}

// Available lists the registered provider names in order.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build instantiates every registered provider whose settings enable it.
// Providers reporting ErrNotConfigured are skipped silently. Other factory
// errors are joined into err while the remaining providers are still built.
func Build(settings map[string]Settings) ([]Notifier, error) {
	var (
		out  []Notifier
		errs []error
	)
	for _, name := range Available() {
		mu.RLock()
		factory := factories[name]
		mu.RUnlock()

		n, err := factory(settings[name])
		switch {
		case errors.Is(err, ErrNotConfigured):
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("notifier %s: %w", name, err))
			continue
		}
		out = append(out, n)
	}
	return out, errors.Join(errs...)
}
