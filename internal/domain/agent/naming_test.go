package agent

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		key  string
		run  *Run
		want string
	}{
		{"label slug", "agent:main:subagent:abc", &Run{Label: "bug-triage_sweep"}, "Bug Triage Sweep"},
		{"plain label kept", "agent:main:subagent:abc", &Run{Label: "Nightly Report"}, "Nightly Report"},
		{"task summary", "agent:main:subagent:abc", &Run{Task: "\n\n  - **Fix** the `login` flow\nsecond line"}, "Fix the login flow"},
		{"subagent fallback", "agent:main:subagent:0123456789abcdef", nil, "Subagent 01234567"},
		{"main fallback", "agent:main:main", nil, "Main Agent"},
		{"tail fallback", "agent:ops:discord", &Run{}, "discord"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DisplayName(tt.key, tt.run); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarizeTaskTruncates(t *testing.T) {
	task := "1. " + strings.Repeat("word ", 40)
	got := SummarizeTask(task)
	if utf8.RuneCountInString(got) != MaxTaskSummaryChars {
		t.Errorf("expected %d runes, got %d (%q)", MaxTaskSummaryChars, utf8.RuneCountInString(got), got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis, got %q", got)
	}
	if SummarizeTask("   \n  ") != "" {
		t.Error("blank task should summarize to empty")
	}
}

func TestShortID(t *testing.T) {
	tests := map[string]string{
		"agent:main:subagent:0123456789abcdef": "01234567",
		"agent:main:main":                      "main",
		"agent:ops:telegram-bridge":            "telegram",
		"agent:ops:cron:nightly:":              "nightly",
	}
	for key, want := range tests {
		if got := ShortID(key); got != want {
			t.Errorf("ShortID(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestRuntime(t *testing.T) {
	tests := map[string]string{
		"agent:main:subagent:abc": "subagent",
		"agent:main:cron:daily":   "cron",
		"agent:main:main":         "agent",
	}
	for key, want := range tests {
		if got := Runtime(key); got != want {
			t.Errorf("Runtime(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := Truncate("hello world again", 7); got != "hello…" {
		t.Errorf("Truncate() = %q, want %q", got, "hello…")
	}
	if got := Truncate("äöüäöüäöü", 4); got != "äöü…" {
		t.Errorf("rune-aware truncate = %q", got)
	}
	if got := NormalizeWhitespace("  a \n\t b  "); got != "a b" {
		t.Errorf("NormalizeWhitespace() = %q", got)
	}
}
