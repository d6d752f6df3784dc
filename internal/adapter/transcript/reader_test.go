package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/port/cache"
)

type memCache struct {
	mu     sync.Mutex
	data   map[string]cache.Entry
	stores int
}

func newMemCache() *memCache { return &memCache{data: map[string]cache.Entry{}} }

func (c *memCache) Lookup(path string) (cache.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[path]
	return e, ok
}

func (c *memCache) Store(path string, e cache.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[path] = e
	c.stores++
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func msgLine(id, role, text string, ts int64) string {
	return fmt.Sprintf(`{"type":"message","id":%q,"timestamp":%d,"message":{"role":%q,"content":%q}}`, id, ts, role, text)
}

func TestReadMessagesExcludesToolsOldestFirst(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, filepath.Join(dir, "s1.jsonl"),
		`{"type":"session","id":"hdr"}`,
		msgLine("m1", "assistant", "first", 1),
		msgLine("m2", "toolResult", "tool output", 2),
		msgLine("m3", "assistant", "second", 3),
		msgLine("m4", "tool", "more tool output", 4),
		msgLine("m5", "assistant", "third", 5),
	)

	r := NewReader(dir, DefaultLimits(), nil)
	got, err := r.ReadMessages(context.Background(), agent.Session{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(got), got)
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Text != want || got[i].Role != agent.RoleAssistant {
			t.Errorf("message[%d] = %+v, want %q", i, got[i], want)
		}
	}
}

func TestReadMessagesMissingFile(t *testing.T) {
	r := NewReader(t.TempDir(), DefaultLimits(), nil)
	got, err := r.ReadMessages(context.Background(), agent.Session{SessionID: "absent"})
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("ReadMessages() = %v, %v; want empty, nil", got, err)
	}

	got, err = r.ReadMessages(context.Background(), agent.Session{})
	if err != nil || len(got) != 0 {
		t.Errorf("session without id: %v, %v", got, err)
	}
}

func TestReadMessagesContentShapes(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, filepath.Join(dir, "shapes.jsonl"),
		`{"type":"message","message":{"role":"user","content":[{"type":"text","text":"hello"},{"type":"thinking","text":"secret"},{"type":"toolCall","text":"call"},{"type":"wrapper","content":[{"type":"text","text":"nested"}]}],"timestamp":"2026-03-01T11:00:00Z"}}`,
		`{"type":"message","message":{"role":"system","content":{"text":"object text"}}}`,
		`not json at all`,
		`{"type":"message","message":{"role":"assistant","content":"   "}}`,
		`{"type":"message","message":{"content":"no role"}}`,
	)

	r := NewReader(dir, DefaultLimits(), nil)
	got, err := r.ReadMessages(context.Background(), agent.Session{SessionFile: "shapes.jsonl"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2: %+v", len(got), got)
	}
	if got[0].Text != "hello\n\nnested" {
		t.Errorf("array content = %q", got[0].Text)
	}
	if got[0].ID != "shapes-0" {
		t.Errorf("fallback id = %q, want shapes-0", got[0].ID)
	}
	if got[0].Timestamp != "2026-03-01T11:00:00Z" {
		t.Errorf("timestamp = %v", got[0].Timestamp)
	}
	if got[1].Text != "object text" || got[1].Role != agent.RoleSystem {
		t.Errorf("object content = %+v", got[1])
	}
}

func TestReadMessagesLimits(t *testing.T) {
	dir := t.TempDir()
	lines := make([]string, 0, 60)
	for i := range 60 {
		lines = append(lines, msgLine(fmt.Sprintf("m%d", i), "user", strings.Repeat("x", 10), int64(i)))
	}
	writeLines(t, filepath.Join(dir, "long.jsonl"), lines...)

	limits := Limits{MaxMessages: 5, MaxScanLines: 4000, MaxModelLines: 120, MaxTextChars: 4}
	r := NewReader(dir, limits, nil)
	got, err := r.ReadMessages(context.Background(), agent.Session{SessionID: "long"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 || got[0].ID != "m55" || got[4].ID != "m59" {
		t.Fatalf("expected the newest five, oldest first: %+v", got)
	}
	if got[0].Text != "xxxx" {
		t.Errorf("text not capped: %q", got[0].Text)
	}

	limits = Limits{MaxMessages: 40, MaxScanLines: 3, MaxModelLines: 120, MaxTextChars: 6000}
	got, _ = NewReader(dir, limits, nil).ReadMessages(context.Background(), agent.Session{SessionID: "long"})
	if len(got) != 3 {
		t.Errorf("scan cap: got %d messages, want 3", len(got))
	}
}

func TestPath(t *testing.T) {
	r := NewReader("/sessions", DefaultLimits(), nil)
	tests := []struct {
		s    agent.Session
		want string
	}{
		{agent.Session{SessionFile: "/abs/x.jsonl", SessionID: "id"}, "/abs/x.jsonl"},
		{agent.Session{SessionFile: "rel.jsonl"}, "/sessions/rel.jsonl"},
		{agent.Session{SessionID: "abc"}, "/sessions/abc.jsonl"},
		{agent.Session{}, ""},
	}
	for _, tt := range tests {
		if got := r.Path(tt.s); got != tt.want {
			t.Errorf("Path(%+v) = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestReadModel(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, filepath.Join(dir, "a.jsonl"),
		`{"type":"session"}`,
		`{"type":"model_change","provider":"openai","modelId":"gpt-5"}`,
		`{"type":"custom","customType":"model-snapshot","data":{"provider":"anthropic","modelId":"claude-x"}}`,
	)
	writeLines(t, filepath.Join(dir, "b.jsonl"),
		`{"type":"custom","customType":"model-snapshot","data":{"model":"local-llm"}}`,
	)

	r := NewReader(dir, DefaultLimits(), nil)
	if got := r.ReadModel(context.Background(), agent.Session{SessionID: "a"}); got != "anthropic/claude-x" {
		t.Errorf("ReadModel(a) = %q", got)
	}
	if got := r.ReadModel(context.Background(), agent.Session{SessionID: "b"}); got != "local-llm" {
		t.Errorf("ReadModel(b) = %q", got)
	}
	if got := r.ReadModel(context.Background(), agent.Session{SessionID: "missing"}); got != "" {
		t.Errorf("ReadModel(missing) = %q", got)
	}
}

func TestReadModelCacheInvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.jsonl")
	writeLines(t, path, `{"type":"model_change","modelId":"first"}`)

	c := newMemCache()
	r := NewReader(dir, DefaultLimits(), c)
	s := agent.Session{SessionID: "c"}

	if got := r.ReadModel(context.Background(), s); got != "first" {
		t.Fatalf("ReadModel() = %q", got)
	}
	if got := r.ReadModel(context.Background(), s); got != "first" {
		t.Fatalf("cached ReadModel() = %q", got)
	}
	if c.stores != 1 {
		t.Errorf("expected one cache fill, got %d", c.stores)
	}

	writeLines(t, path, `{"type":"model_change","provider":"p","modelId":"second-model"}`)
	if got := r.ReadModel(context.Background(), s); got != "p/second-model" {
		t.Errorf("after change ReadModel() = %q", got)
	}
	if c.stores != 2 {
		t.Errorf("expected a refill after the file changed, got %d sets", c.stores)
	}
}
