package agent

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTaskSummaryChars caps names derived from a run's task text.
const MaxTaskSummaryChars = 88

var (
	listMarkerRe = regexp.MustCompile(`^[-*\d.)\s]+`)
	markdownRe   = regexp.MustCompile("[`*_~#]+")
	labelSepRe   = regexp.MustCompile(`[-_]+`)
)

// DisplayName picks a column title: the run label, else a summary of the
// run's task, else a name derived from the session key.
func DisplayName(sessionKey string, run *Run) string {
	if run != nil {
		if name := NormalizeLabel(run.Label); name != "" {
			return name
		}
		if name := SummarizeTask(run.Task); name != "" {
			return name
		}
	}
	return fallbackName(sessionKey)
}

// NormalizeLabel turns slug labels ("bug-triage_v2") into title case
// ("Bug Triage V2"). Labels without separators are kept as written.
func NormalizeLabel(label string) string {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return ""
	}
	if !strings.ContainsAny(trimmed, "-_") {
		return trimmed
	}
	spaced := NormalizeWhitespace(labelSepRe.ReplaceAllString(trimmed, " "))
	return titleCase(spaced)
}

// SummarizeTask returns the first non-empty line of a task with list
// markers and markdown emphasis removed, capped at MaxTaskSummaryChars.
func SummarizeTask(task string) string {
	var first string
	for _, line := range strings.Split(task, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			first = l
			break
		}
	}
	if first == "" {
		return ""
	}

	plain := listMarkerRe.ReplaceAllString(first, "")
	plain = markdownRe.ReplaceAllString(plain, "")
	plain = NormalizeWhitespace(plain)
	if plain == "" {
		return ""
	}
	return Truncate(plain, MaxTaskSummaryChars)
}

// ShortID is the compact identifier shown under a column title.
func ShortID(key string) string {
	if id, ok := subagentID(key); ok {
		return Prefix(id, 8)
	}
	if strings.HasSuffix(key, ":main") {
		return "main"
	}
	tail := key
	for _, part := range strings.Split(key, ":") {
		if part != "" {
			tail = part
		}
	}
	return Prefix(tail, 8)
}

// Runtime classifies the session kind from its key.
func Runtime(key string) string {
	switch {
	case IsSubagentKey(key):
		return "subagent"
	case strings.Contains(key, ":cron:"):
		return "cron"
	default:
		return "agent"
	}
}

func fallbackName(key string) string {
	if id, ok := subagentID(key); ok {
		return "Subagent " + Prefix(id, 8)
	}
	if strings.HasSuffix(key, ":main") {
		return "Main Agent"
	}
	parts := strings.Split(key, ":")
	return parts[len(parts)-1]
}

func subagentID(key string) (string, bool) {
	_, after, ok := strings.Cut(key, ":subagent:")
	if !ok {
		return "", false
	}
	if i := strings.Index(after, ":subagent:"); i >= 0 {
		after = after[:i]
	}
	return after, true
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
