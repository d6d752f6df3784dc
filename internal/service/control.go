package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/missioncontrol/internal/domain"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
)

// Control actions.
const (
	ActionNudge         = "nudge"
	ActionStop          = "stop"
	ActionSpawnTemplate = "spawnTemplate"
	ActionRetryFailed   = "retryFailed"
)

// Spawn templates.
const (
	TemplateResearchBrief = "research-brief"
	TemplateBugTriage     = "bug-triage"
	TemplateBuildFeature  = "build-feature"
)

var controlMessages = map[string]string{
	ActionNudge: "Mission Control nudge: please post a short status update on your current task, " +
		"including any blocker and your next step.",
	ActionStop: "Mission Control stop request: please stop your current work, " +
		"summarize what was completed, and wait for further instructions.",
}

var templateMessages = map[string]string{
	TemplateResearchBrief: "Mission Control template request (research-brief): spawn a subagent labelled research-brief " +
		"to research the topic you are working on and return a concise brief with sources and open questions.",
	TemplateBugTriage: "Mission Control template request (bug-triage): spawn a subagent labelled bug-triage " +
		"to reproduce the most recent reported bug, identify the likely cause and propose a fix.",
	TemplateBuildFeature: "Mission Control template request (build-feature): spawn a subagent labelled build-feature " +
		"to implement the next planned feature end to end and report back with a summary of the change.",
}

// ControlRequest is one operator action on a session.
type ControlRequest struct {
	Action     string `json:"action"`
	SessionID  string `json:"sessionId"`
	TemplateID string `json:"templateId,omitempty"`
}

// ControlResult is the session's reply to the action.
type ControlResult struct {
	Action string `json:"action"`
	Reply  string `json:"reply"`
}

// ControlService runs operator actions: nudges, stop requests, template
// spawns and manual retries of failed runs.
type ControlService struct {
	messaging     *MessagingService
	watchdog      *WatchdogService
	sessions      runtime.SessionLister
	runs          runtime.RunLister
	windows       agent.Windows
	activeMinutes int
	now           func() time.Time
}

// NewControlService creates a ControlService.
func NewControlService(
	messaging *MessagingService,
	watchdog *WatchdogService,
	sessions runtime.SessionLister,
	runs runtime.RunLister,
	windows agent.Windows,
	activeMinutes int,
) *ControlService {
	return &ControlService{
		messaging:     messaging,
		watchdog:      watchdog,
		sessions:      sessions,
		runs:          runs,
		windows:       windows,
		activeMinutes: activeMinutes,
		now:           time.Now,
	}
}

// Validate checks and normalizes a control request.
func (s *ControlService) Validate(req ControlRequest) (ControlRequest, error) {
	req.Action = strings.TrimSpace(req.Action)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.TemplateID = strings.TrimSpace(req.TemplateID)

	switch req.Action {
	case ActionNudge, ActionStop, ActionSpawnTemplate, ActionRetryFailed:
	default:
		return req, fmt.Errorf("%w: Invalid action. Allowed actions: nudge, stop, spawnTemplate, retryFailed.", domain.ErrValidation)
	}
	if req.SessionID == "" {
		return req, fmt.Errorf("%w: sessionId is required.", domain.ErrValidation)
	}
	if req.Action == ActionSpawnTemplate {
		if _, ok := templateMessages[req.TemplateID]; !ok {
			return req, fmt.Errorf("%w: Invalid templateId. Allowed templates: research-brief, bug-triage, build-feature.", domain.ErrValidation)
		}
	}
	return req, nil
}

// Run executes a control request.
func (s *ControlService) Run(ctx context.Context, req ControlRequest) (ControlResult, error) {
	req, err := s.Validate(req)
	if err != nil {
		return ControlResult{}, err
	}

	if req.Action == ActionRetryFailed {
		reply, err := s.retryFailed(ctx, req.SessionID)
		if err != nil {
			return ControlResult{}, err
		}
		return ControlResult{Action: req.Action, Reply: reply}, nil
	}

	message := controlMessages[req.Action]
	if req.Action == ActionSpawnTemplate {
		message = templateMessages[req.TemplateID]
	}
	out, err := s.messaging.SendWithMirror(ctx, SendInput{
		SessionID:             req.SessionID,
		Message:               message,
		ActionLabel:           req.Action,
		Thinking:              runtime.ThinkingMinimal,
		AcceptTimeoutAsQueued: true,
	})
	if err != nil {
		return ControlResult{}, err
	}
	return ControlResult{Action: req.Action, Reply: out.Reply}, nil
}

// retryFailed requeues the most recent failed run of the session.
func (s *ControlService) retryFailed(ctx context.Context, sessionID string) (string, error) {
	sessions, err := s.sessions.ListActiveSessions(ctx, s.activeMinutes)
	if err != nil {
		return "", fmt.Errorf("retry: load sessions: %w", err)
	}
	sess, ok := agent.FindBySessionID(sessions, sessionID)
	if !ok {
		return "", fmt.Errorf("retry: session %s: %w", sessionID, domain.ErrNotFound)
	}

	runs, err := s.runs.ListRuns(ctx)
	if err != nil {
		return "", fmt.Errorf("retry: load runs: %w", err)
	}
	run, ok := agent.LatestFailedRun(runs, sess.Key, s.now(), s.windows)
	if !ok {
		return "", fmt.Errorf("retry: failed run for %s: %w", sess.Key, domain.ErrNotFound)
	}

	out, err := s.watchdog.RetryRun(ctx, run)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}
