package openclaw

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ExecError describes a failed openclaw invocation.
type ExecError struct {
	Command  string
	Stdout   string
	Stderr   string
	TimedOut bool
	Err      error

	notFound bool
}

func (e *ExecError) Error() string {
	base := e.Command + " failed: " + e.Err.Error()
	var details []string
	if s := strings.TrimSpace(StripANSI(e.Stderr)); s != "" {
		details = append(details, "stderr: "+prefix(s, 800))
	}
	if s := strings.TrimSpace(StripANSI(e.Stdout)); s != "" {
		details = append(details, "stdout: "+prefix(s, 500))
	}
	if e.TimedOut {
		details = append(details, "process was terminated before completion")
	}
	if len(details) == 0 {
		return base
	}
	return base + " (" + strings.Join(details, " | ") + ")"
}

func (e *ExecError) Unwrap() error { return e.Err }

var timeoutText = regexp.MustCompile(`(?i)timed out|terminated before completion`)

// IsTimeout reports whether err is a runtime call that ran out of its own
// time. A call cut short by the caller's context is not a timeout.
func IsTimeout(err error) bool {
	if err == nil || callerEnded(err) {
		return false
	}
	var execErr *ExecError
	if errors.As(err, &execErr) && execErr.TimedOut {
		return true
	}
	return timeoutText.MatchString(err.Error())
}

// CountsAsFailure reports whether err should count against the runtime
// circuit. Calls abandoned by the caller say nothing about runtime health.
func CountsAsFailure(err error) bool {
	return !callerEnded(err)
}

func callerEnded(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
