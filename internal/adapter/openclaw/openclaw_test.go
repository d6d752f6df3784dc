package openclaw

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/missioncontrol/internal/config"
	"github.com/Strob0t/missioncontrol/internal/domain"
	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
	"github.com/Strob0t/missioncontrol/internal/resilience"
)

// writeScript installs a shell stand-in for the openclaw binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("shell stand-ins need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "openclaw")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestClient(binary string, breaker *resilience.Breaker) *Client {
	cfg := config.Defaults().OpenClaw
	cfg.Binary = binary
	cfg.BinaryCandidates = nil
	c := New(cfg, breaker)
	c.environ = func() []string { return []string{"PATH=/usr/bin:/bin", "HOME=/tmp"} }
	return c
}

func TestSendReturnsStrippedReply(t *testing.T) {
	bin := writeScript(t, `printf '\033[32m  hello from main  \033[0m\n'`)
	c := newTestClient(bin, nil)

	res, err := c.Send(context.Background(), runtime.SendRequest{SessionID: "s-1", Message: "status?"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Reply != "hello from main" {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.Queued {
		t.Error("reply should not be queued")
	}
}

func TestSendPassesArguments(t *testing.T) {
	bin := writeScript(t, `echo "$@"`)
	c := newTestClient(bin, nil)

	res, err := c.Send(context.Background(), runtime.SendRequest{
		SessionID: " s-1 ",
		Message:   "ping\x00",
		Thinking:  runtime.ThinkingMinimal,
		Timeout:   45 * time.Second,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := "agent --session-id s-1 --message ping --timeout 45 --thinking minimal"
	if res.Reply != want {
		t.Errorf("args = %q, want %q", res.Reply, want)
	}
}

func TestSendValidation(t *testing.T) {
	c := newTestClient("/nonexistent/openclaw", nil)
	long := strings.Repeat("x", 4001)

	tests := []struct {
		name string
		req  runtime.SendRequest
		want string
	}{
		{"missing session", runtime.SendRequest{Message: "hi"}, "missing sessionId"},
		{"empty message", runtime.SendRequest{SessionID: "s", Message: " \x00 "}, "message cannot be empty"},
		{"too long", runtime.SendRequest{SessionID: "s", Message: long}, "message is too long (max 4000 characters)"},
		{"bad thinking", runtime.SendRequest{SessionID: "s", Message: "hi", Thinking: "max"}, "unknown thinking level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Send(context.Background(), tt.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSendTimeoutAcceptedAsQueued(t *testing.T) {
	bin := writeScript(t, `exec sleep 5`)
	c := newTestClient(bin, nil)

	res, err := c.Send(context.Background(), runtime.SendRequest{
		SessionID:             "s-1",
		Message:               "slow",
		ExecTimeout:           200 * time.Millisecond,
		AcceptTimeoutAsQueued: true,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Queued || res.Reply != QueuedReply {
		t.Errorf("got %+v, want queued placeholder", res)
	}
}

func TestSendTimeoutIsError(t *testing.T) {
	bin := writeScript(t, `exec sleep 5`)
	c := newTestClient(bin, nil)

	_, err := c.Send(context.Background(), runtime.SendRequest{
		SessionID:   "s-1",
		Message:     "slow",
		ExecTimeout: 200 * time.Millisecond,
	})
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !strings.Contains(err.Error(), "process was terminated before completion") {
		t.Errorf("error should explain termination: %v", err)
	}
}

func TestSendCallerDeadlineIsNotRuntimeTimeout(t *testing.T) {
	bin := writeScript(t, `exec sleep 5`)
	breaker := resilience.NewBreaker(1, time.Minute).WithClassifier(CountsAsFailure)
	c := newTestClient(bin, breaker)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	res, err := c.Send(ctx, runtime.SendRequest{
		SessionID:             "s-1",
		Message:               "slow",
		ExecTimeout:           5 * time.Second,
		AcceptTimeoutAsQueued: true,
	})
	if res.Queued {
		t.Fatal("abandoned send must not be reported as queued")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if IsTimeout(err) || strings.Contains(err.Error(), "timed out after") {
		t.Errorf("caller deadline reported as runtime timeout: %v", err)
	}
	if got := breaker.State(); got != "closed" {
		t.Errorf("breaker state = %q, want closed", got)
	}
}

func TestMissingEnvVarRetriedOnce(t *testing.T) {
	bin := writeScript(t, `if [ -z "$SLACK_APP_TOKEN" ]; then
  echo 'MissingEnvVarError: Missing env var "SLACK_APP_TOKEN"' >&2
  exit 1
fi
echo "token=$SLACK_APP_TOKEN"`)
	c := newTestClient(bin, nil)

	res, err := c.Send(context.Background(), runtime.SendRequest{SessionID: "s-1", Message: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Reply != "token=openclaw-placeholder-slack_app_token" {
		t.Errorf("reply = %q", res.Reply)
	}
}

func TestMissingEnvVarNotRetriedTwice(t *testing.T) {
	bin := writeScript(t, `echo 'Missing env var "ALWAYS_MISSING"' >&2
exit 1`)
	c := newTestClient(bin, nil)

	_, err := c.Send(context.Background(), runtime.SendRequest{SessionID: "s-1", Message: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "ALWAYS_MISSING") {
		t.Errorf("error should carry stderr: %v", err)
	}
}

func TestFallsBackToNextCandidate(t *testing.T) {
	bin := writeScript(t, `echo found`)
	cfg := config.Defaults().OpenClaw
	cfg.Binary = "/nonexistent/openclaw"
	cfg.BinaryCandidates = []string{"openclaw-not-installed", bin}
	c := New(cfg, nil)
	c.environ = func() []string { return []string{"PATH=/usr/bin:/bin"} }

	res, err := c.Send(context.Background(), runtime.SendRequest{SessionID: "s-1", Message: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Reply != "found" {
		t.Errorf("reply = %q", res.Reply)
	}
}

func TestNoCandidateFound(t *testing.T) {
	c := newTestClient("/nonexistent/openclaw", nil)
	_, err := c.Send(context.Background(), runtime.SendRequest{SessionID: "s-1", Message: "hi"})
	if !errors.Is(err, errBinaryNotFound) || !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable binary, got %v", err)
	}
}

func TestResolveBinaryUsesChildPath(t *testing.T) {
	bin := writeScript(t, `true`)
	got, err := resolveBinary("openclaw", "/does/not/exist"+string(os.PathListSeparator)+filepath.Dir(bin))
	if err != nil {
		t.Fatalf("resolveBinary: %v", err)
	}
	if got != bin {
		t.Errorf("got %s, want %s", got, bin)
	}
}

func TestListActiveSessions(t *testing.T) {
	bin := writeScript(t, `echo "[plugins] loaded 3 plugins"
cat <<'JSON'
{"sessions":[
  {"key":"agent:main:main","sessionId":"main-1","updatedAt":1700000000000,"model":"anthropic/claude"},
  {"key":"agent:main:subagent:abc","sessionId":"sub-1","ageMs":1000}
]}
JSON`)
	c := newTestClient(bin, nil)

	sessions, err := c.ListActiveSessions(context.Background(), 360)
	if err != nil {
		t.Fatalf("ListActiveSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].Key != "agent:main:main" || sessions[0].SessionID != "main-1" {
		t.Errorf("first session = %+v", sessions[0])
	}
	if sessions[1].AgeMs == nil || *sessions[1].AgeMs != 1000 {
		t.Errorf("second session age = %v", sessions[1].AgeMs)
	}
}

func TestListActiveSessionsRejectsUnrelatedJSON(t *testing.T) {
	bin := writeScript(t, `echo '{"level":"info","msg":"no sessions here"}'`)
	c := newTestClient(bin, nil)

	if _, err := c.ListActiveSessions(context.Background(), 360); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestListActiveSessionsEmptyOutput(t *testing.T) {
	bin := writeScript(t, `true`)
	c := newTestClient(bin, nil)

	_, err := c.ListActiveSessions(context.Background(), 360)
	if err == nil || !strings.Contains(err.Error(), "empty output") {
		t.Fatalf("expected empty output error, got %v", err)
	}
}

func TestSpawnAndPatch(t *testing.T) {
	bin := writeScript(t, `case "$3" in
  agent) echo '{"runId":"  run-2 ","status":"accepted"}' ;;
  sessions.patch) echo '{"ok":true}' ;;
  *) echo "unexpected $*" >&2; exit 2 ;;
esac`)
	c := newTestClient(bin, nil)

	resp, err := c.Spawn(context.Background(), watchdog.RequeuePayload{
		SessionKey: "agent:main:subagent:x",
		Message:    "do it",
		Lane:       "subagent",
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if resp.RunID != "run-2" || resp.Status != "accepted" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Raw) == 0 {
		t.Error("raw response should be kept")
	}

	if err := c.PatchSessionModel(context.Background(), "agent:main:subagent:x", "openai/gpt-5"); err != nil {
		t.Errorf("PatchSessionModel: %v", err)
	}
}

func TestSpawnWithoutRunID(t *testing.T) {
	bin := writeScript(t, `echo '{"status":42}'`)
	c := newTestClient(bin, nil)

	resp, err := c.Spawn(context.Background(), watchdog.RequeuePayload{SessionKey: "k"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if resp.RunID != "" || resp.Status != "" {
		t.Errorf("non-string fields should be dropped: %+v", resp)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	bin := writeScript(t, `echo boom >&2; exit 1`)
	c := newTestClient(bin, resilience.NewBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := c.Send(context.Background(), runtime.SendRequest{SessionID: "s", Message: "m"}); err == nil {
			t.Fatal("expected failure")
		}
	}
	_, err := c.Send(context.Background(), runtime.SendRequest{SessionID: "s", Message: "m"})
	if !errors.Is(err, resilience.ErrCircuitOpen) || !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable open circuit, got %v", err)
	}
	if c.BreakerState() != "open" {
		t.Errorf("state = %s", c.BreakerState())
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, false},
		{"leading noise", "warn: x\n{\"a\":1}", `{"a":1}`, false},
		{"trailing noise", "{\"a\":1}\ndone", `{"a":1}`, false},
		{"array", "noise [1,2] tail", `[1,2]`, false},
		{"ansi", "\x1b[33m{\"a\":2}\x1b[0m", `{"a":2}`, false},
		{"empty", "  \n", "", true},
		{"garbage", "no json at all", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJSON(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"exec timeout", &ExecError{Command: "openclaw agent", Err: errors.New("x"), TimedOut: true}, true},
		{"caller deadline", context.DeadlineExceeded, false},
		{"caller deadline during exec", &ExecError{Command: "openclaw agent", Err: context.DeadlineExceeded}, false},
		{"message", errors.New("gateway timed out waiting"), true},
		{"other", errors.New("exit status 1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecErrorMessage(t *testing.T) {
	err := &ExecError{
		Command: "openclaw agent",
		Stdout:  "partial",
		Stderr:  "\x1b[31mbad things\x1b[0m",
		Err:     errors.New("exit status 1"),
	}
	want := "openclaw agent failed: exit status 1 (stderr: bad things | stdout: partial)"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestCapWriter(t *testing.T) {
	w := &capWriter{limit: 4}
	_, _ = w.Write([]byte("ab"))
	_, _ = w.Write([]byte("cdef"))
	if w.String() != "abcd" || !w.overflow {
		t.Errorf("got %q overflow=%v", w.String(), w.overflow)
	}
}

func TestRunWaitsForProcessSlot(t *testing.T) {
	bin := writeScript(t, `echo should-not-run`)
	cfg := config.Defaults().OpenClaw
	cfg.Binary = bin
	cfg.BinaryCandidates = nil
	cfg.MaxConcurrent = 1
	c := New(cfg, nil)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = c.pool.Run(context.Background(), func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Send(ctx, runtime.SendRequest{SessionID: "s1", Message: "hi"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestCountsAsFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"exec failure", &ExecError{Command: "openclaw agent", Err: errors.New("exit status 1")}, true},
		{"timeout", &ExecError{Command: "openclaw agent", Err: errors.New("timed out after 1s"), TimedOut: true}, true},
		{"caller went away", &ExecError{Command: "openclaw agent", Err: context.Canceled}, false},
		{"caller deadline", &ExecError{Command: "openclaw agent", Err: context.DeadlineExceeded}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountsAsFailure(tt.err); got != tt.want {
				t.Errorf("CountsAsFailure = %v, want %v", got, tt.want)
			}
		})
	}
}
