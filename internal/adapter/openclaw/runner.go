// Package openclaw drives the OpenClaw runtime through its command-line
// interface: session listing, message sends and gateway calls.
package openclaw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Strob0t/missioncontrol/internal/config"
	"github.com/Strob0t/missioncontrol/internal/domain"
	"github.com/Strob0t/missioncontrol/internal/resilience"
)

// extraPathDirs are appended to PATH so service managers with a minimal
// environment still find the runtime and its interpreters.
var extraPathDirs = []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin", "/bin"}

var errBinaryNotFound = errors.New("unable to locate openclaw binary")

// Client runs openclaw commands. It is safe for concurrent use.
type Client struct {
	cfg        config.OpenClaw
	candidates []string
	breaker    *resilience.Breaker
	pool       *resilience.Pool
	environ    func() []string
	now        func() time.Time
}

// New returns a client. breaker may be nil.
func New(cfg config.OpenClaw, breaker *resilience.Breaker) *Client {
	seen := make(map[string]bool)
	var candidates []string
	for _, c := range append([]string{cfg.Binary}, cfg.BinaryCandidates...) {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		candidates = append(candidates, c)
	}
	return &Client{
		cfg:        cfg,
		candidates: candidates,
		breaker:    breaker,
		pool:       resilience.NewPool(cfg.MaxConcurrent),
		environ:    os.Environ,
		now:        time.Now,
	}
}

// BreakerState reports the circuit state guarding runtime calls.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State()
}

type runOptions struct {
	timeout   time.Duration
	maxOutput int
}

// run executes the first available candidate binary once a process slot is
// free. A "Missing env var" failure is retried once on the same binary with
// placeholder values.
func (c *Client) run(ctx context.Context, args []string, opts runOptions) (string, error) {
	var stdout string
	call := func() error {
		out, err := c.runCandidates(ctx, args, opts)
		stdout = out
		return err
	}
	err := c.pool.Run(ctx, func() error {
		if c.breaker == nil {
			return call()
		}
		return c.breaker.Execute(call)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, errBinaryNotFound) {
		err = fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return stdout, err
}

func (c *Client) runCandidates(ctx context.Context, args []string, opts runOptions) (string, error) {
	env := c.env(nil)
	pathValue := lookup(env, "PATH")

	lastErr := errBinaryNotFound
	for _, candidate := range c.candidates {
		bin, err := resolveBinary(candidate, pathValue)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", candidate, errBinaryNotFound)
			continue
		}

		out, err := c.exec(ctx, bin, args, env, opts)
		if err == nil {
			return out, nil
		}
		var execErr *ExecError
		if errors.As(err, &execErr) && execErr.notFound {
			lastErr = err
			continue
		}

		missing := missingEnvVars(err)
		if len(missing) == 0 {
			return "", err
		}
		overrides := make(map[string]string, len(missing))
		for _, name := range missing {
			overrides[name] = c.placeholder(name)
		}
		slog.Warn("openclaw reported missing env vars, retrying with placeholders", "vars", missing)
		return c.exec(ctx, bin, args, c.env(overrides), opts)
	}
	return "", lastErr
}

func (c *Client) exec(ctx context.Context, bin string, args, env []string, opts runOptions) (string, error) {
	if opts.timeout <= 0 {
		opts.timeout = time.Minute
	}
	cctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, bin, args...)
	cmd.Env = env
	cmd.WaitDelay = 2 * time.Second
	stdout := &capWriter{limit: opts.maxOutput}
	stderr := &capWriter{limit: 64 << 10}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := c.now()
	err := cmd.Run()
	slog.Debug("openclaw command finished", "command", commandName(args), "duration_ms", c.now().Sub(start).Milliseconds(), "error", err)

	if err != nil {
		execErr := &ExecError{
			Command:  commandName(args),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      err,
			notFound: errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist),
		}
		// The caller's own deadline or cancellation wins over the local timer.
		switch {
		case ctx.Err() != nil:
			execErr.Err = ctx.Err()
		case errors.Is(cctx.Err(), context.DeadlineExceeded):
			execErr.TimedOut = true
			execErr.Err = fmt.Errorf("timed out after %s", opts.timeout)
		}
		return "", execErr
	}
	if stdout.overflow {
		return "", &ExecError{
			Command: commandName(args),
			Stderr:  stderr.String(),
			Err:     fmt.Errorf("stdout exceeded %d bytes", opts.maxOutput),
		}
	}
	return stdout.String(), nil
}

// env composes the child environment: the process environment, overrides,
// and PATH extended with common install locations.
func (c *Client) env(overrides map[string]string) []string {
	vars := make(map[string]string)
	for _, kv := range c.environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	for k, v := range overrides {
		vars[k] = v
	}
	parts := []string{}
	if p := vars["PATH"]; p != "" {
		parts = append(parts, p)
	}
	vars["PATH"] = strings.Join(append(parts, extraPathDirs...), string(os.PathListSeparator))

	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func (c *Client) placeholder(name string) string {
	if v := lookup(c.environ(), name); strings.TrimSpace(v) != "" {
		return v
	}
	return "openclaw-placeholder-" + strings.ToLower(name)
}

func lookup(env []string, key string) string {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return ""
}

// resolveBinary finds a candidate on the child's PATH (not the parent's),
// or checks an explicit path.
func resolveBinary(candidate, pathValue string) (string, error) {
	if strings.ContainsRune(candidate, filepath.Separator) {
		if isExecutable(candidate) {
			return candidate, nil
		}
		return "", errBinaryNotFound
	}
	for _, dir := range filepath.SplitList(pathValue) {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, candidate)
		if isExecutable(p) {
			return p, nil
		}
	}
	return "", errBinaryNotFound
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}

var missingEnvPattern = regexp.MustCompile(`Missing env var "([A-Za-z_][A-Za-z0-9_]*)"`)

// missingEnvVars extracts the variable names of a MissingEnvVarError.
func missingEnvVars(err error) []string {
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		return nil
	}
	combined := strings.Join([]string{execErr.Stderr, execErr.Stdout, execErr.Err.Error()}, "\n")
	if !strings.Contains(combined, "MissingEnvVarError") && !strings.Contains(combined, `Missing env var "`) {
		return nil
	}
	var names []string
	seen := make(map[string]bool)
	for _, m := range missingEnvPattern.FindAllStringSubmatch(combined, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func commandName(args []string) string {
	if len(args) == 0 {
		return "openclaw"
	}
	return "openclaw " + args[0]
}

// capWriter keeps at most limit bytes and records whether more arrived.
type capWriter struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	room := w.limit - w.buf.Len()
	if room <= 0 {
		w.overflow = true
		return len(p), nil
	}
	if len(p) > room {
		w.overflow = true
		w.buf.Write(p[:room])
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (w *capWriter) String() string { return w.buf.String() }
