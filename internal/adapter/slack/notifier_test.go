package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/missioncontrol/internal/port/notifier"
)

func TestSendNotConfigured(t *testing.T) {
	err := NewNotifier("").Send(context.Background(), notifier.Notification{Title: "test"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendPayload(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewNotifier(srv.URL).Send(context.Background(), notifier.Notification{
		Title:   "Mission Control watchdog",
		Message: "Stalled threshold: 20m.",
		Level:   notifier.LevelSuccess,
		Source:  "watchdog.retried",
		Fields:  []notifier.Field{{Label: "run r1", Value: "retried after 42m stall"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Text != ":white_check_mark: Mission Control watchdog" {
		t.Errorf("fallback text = %q", got.Text)
	}
	if len(got.Blocks) != 4 {
		t.Fatalf("blocks = %d, want header, message, fields, context", len(got.Blocks))
	}
	if f := got.Blocks[2].Fields; len(f) != 1 || f[0].Text != "*run r1*\nretried after 42m stall" {
		t.Errorf("fields = %+v", f)
	}
	if got.Blocks[3].Elements[0].Text != "_Source: watchdog.retried_" {
		t.Errorf("context = %+v", got.Blocks[3].Elements[0])
	}
}

func TestRenderSplitsFields(t *testing.T) {
	fields := make([]notifier.Field, 23)
	for i := range fields {
		fields[i] = notifier.Field{Label: fmt.Sprintf("run r%d", i), Value: "retried"}
	}
	msg := render(notifier.Notification{Title: "t", Fields: fields})

	var sizes []int
	for _, b := range msg.Blocks {
		if len(b.Fields) > 0 {
			sizes = append(sizes, len(b.Fields))
		}
	}
	if fmt.Sprint(sizes) != "[10 10 3]" {
		t.Errorf("field sections = %v, want [10 10 3]", sizes)
	}
}

func TestRenderTruncatesLongMessage(t *testing.T) {
	msg := render(notifier.Notification{Title: "long", Message: strings.Repeat("x", 5000)})
	if n := len([]rune(msg.Blocks[1].Text.Text)); n > maxSectionChars {
		t.Errorf("section length %d exceeds %d", n, maxSectionChars)
	}
}

func TestSendWebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	err := NewNotifier(srv.URL).Send(context.Background(), notifier.Notification{Title: "test"})
	if err == nil || !strings.Contains(err.Error(), "slack webhook 403: invalid_token") {
		t.Fatalf("err = %v", err)
	}
}

func TestRegistered(t *testing.T) {
	built, err := notifier.Build(map[string]notifier.Settings{
		providerName: {"webhook_url": "https://hooks.slack.test/x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(built) != 1 || built[0].Name() != providerName {
		t.Fatalf("built = %v", built)
	}
}
