package openclaw

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/missioncontrol/internal/domain"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
)

var (
	_ runtime.Sender        = (*Client)(nil)
	_ runtime.Spawner       = (*Client)(nil)
	_ runtime.SessionLister = (*Client)(nil)
)

// QueuedReply stands in for a reply that did not arrive before the timeout.
const QueuedReply = "Mission Control accepted your action request and it is still processing in the background."

// Send delivers a message through `openclaw agent` and returns the reply.
func (c *Client) Send(ctx context.Context, req runtime.SendRequest) (runtime.SendResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return runtime.SendResult{}, fmt.Errorf("%w: missing sessionId", domain.ErrValidation)
	}
	message := strings.TrimSpace(strings.ReplaceAll(req.Message, "\x00", ""))
	if message == "" {
		return runtime.SendResult{}, fmt.Errorf("%w: message cannot be empty", domain.ErrValidation)
	}
	maxChars := c.cfg.MaxMessageChars
	if maxChars > 0 && len([]rune(message)) > maxChars {
		return runtime.SendResult{}, fmt.Errorf("%w: message is too long (max %d characters)", domain.ErrValidation, maxChars)
	}
	if !req.Thinking.Valid() {
		return runtime.SendResult{}, fmt.Errorf("%w: unknown thinking level %q", domain.ErrValidation, req.Thinking)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.SendTimeout
	}
	execTimeout := req.ExecTimeout
	if execTimeout <= 0 {
		execTimeout = c.cfg.SendExecTimeout
	}

	args := []string{
		"agent",
		"--session-id", sessionID,
		"--message", message,
		"--timeout", strconv.Itoa(int(timeout / time.Second)),
	}
	if req.Thinking != "" {
		args = append(args, "--thinking", string(req.Thinking))
	}

	out, err := c.run(ctx, args, runOptions{timeout: execTimeout, maxOutput: c.cfg.MaxOutputBytes})
	if err != nil {
		if req.AcceptTimeoutAsQueued && IsTimeout(err) {
			return runtime.SendResult{Reply: QueuedReply, Queued: true}, nil
		}
		return runtime.SendResult{}, err
	}

	reply := strings.TrimSpace(StripANSI(out))
	if c.cfg.MaxReplyChars > 0 {
		reply = agent.Prefix(reply, c.cfg.MaxReplyChars)
	}
	return runtime.SendResult{Reply: reply}, nil
}
