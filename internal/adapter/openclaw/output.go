package openclaw

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI removes SGR color sequences.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

var errEmptyOutput = errors.New("expected JSON output but command returned empty stdout")

// jsonCandidates lists substrings of noisy output that may hold the JSON
// document: the whole text, then object and array spans.
func jsonCandidates(stdout string) ([]string, error) {
	stripped := strings.TrimSpace(StripANSI(stdout))
	if stripped == "" {
		return nil, errEmptyOutput
	}

	candidates := []string{stripped}
	add := func(open, closing string) {
		first := strings.Index(stripped, open)
		last := strings.LastIndex(stripped, closing)
		if first < 0 || last <= first {
			return
		}
		if first > 0 {
			candidates = append(candidates, stripped[first:])
		}
		candidates = append(candidates, stripped[first:last+1])
	}
	add("{", "}")
	add("[", "]")

	seen := make(map[string]bool, len(candidates))
	unique := candidates[:0]
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			unique = append(unique, c)
		}
	}
	return unique, nil
}

// parseJSON returns the first candidate that is a valid JSON document.
func parseJSON(stdout string) (json.RawMessage, error) {
	candidates, err := jsonCandidates(stdout)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if json.Valid([]byte(c)) {
			return json.RawMessage(c), nil
		}
	}
	return nil, errors.New("unable to parse JSON from command output")
}
