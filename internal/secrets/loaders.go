package secrets

import (
	"fmt"
	"os"
	"strings"
)

// StaticLoader returns a Loader for fixed values. Empty values are omitted.
func StaticLoader(vals map[string]string) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string, len(vals))
		for k, v := range vals {
			if v != "" {
				out[k] = v
			}
		}
		return out, nil
	}
}

// FileLoader returns a Loader that reads each secret from its file, trimming
// surrounding whitespace. Entries with an empty path are skipped.
func FileLoader(files map[string]string) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string, len(files))
		for k, path := range files {
			if path == "" {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read secret %s: %w", k, err)
			}
			if v := strings.TrimSpace(string(data)); v != "" {
				out[k] = v
			}
		}
		return out, nil
	}
}

// Merge combines loaders. Later loaders override earlier ones, and any
// error aborts the load.
func Merge(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string)
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			for k, v := range vals {
				out[k] = v
			}
		}
		return out, nil
	}
}
