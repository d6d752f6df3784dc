// Package slack posts Mission Control notifications to a Slack incoming
// webhook.
package slack

import (
	"context"
	"net/http"
	"slices"

	"github.com/Strob0t/missioncontrol/internal/adapter/webhook"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/port/notifier"
)

const (
	providerName = "slack"
	// Block Kit limits.
	maxSectionChars = 3000
	maxFieldChars   = 2000
	maxFields       = 10
)

// Notifier renders notifications as Block Kit messages.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a Slack notifier for webhookURL.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{webhookURL: webhookURL, httpClient: webhook.NewClient()}
}

func (n *Notifier) Name() string { return providerName }

// message is a Block Kit payload. Text is the fallback shown in push
// notifications.
type message struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

type block struct {
	Type     string  `json:"type"`
	Text     *text   `json:"text,omitempty"`
	Fields   []*text `json:"fields,omitempty"`
	Elements []*text `json:"elements,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (n *Notifier) Send(ctx context.Context, nt notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}
	return webhook.PostJSON(ctx, n.httpClient, providerName, n.webhookURL, render(nt))
}

func render(nt notifier.Notification) message {
	title := levelEmoji(nt.Level) + " " + nt.Title
	msg := message{
		Text:   title,
		Blocks: []block{{Type: "header", Text: &text{Type: "plain_text", Text: title}}},
	}
	if nt.Message != "" {
		msg.Blocks = append(msg.Blocks, block{
			Type: "section",
			Text: &text{Type: "mrkdwn", Text: "```" + agent.Truncate(nt.Message, maxSectionChars-6) + "```"},
		})
	}

	// A section holds at most maxFields fields; further runs start a new one.
	for chunk := range slices.Chunk(nt.Fields, maxFields) {
		fields := make([]*text, 0, len(chunk))
		for _, f := range chunk {
			fields = append(fields, &text{
				Type: "mrkdwn",
				Text: agent.Truncate("*"+f.Label+"*\n"+f.Value, maxFieldChars),
			})
		}
		msg.Blocks = append(msg.Blocks, block{Type: "section", Fields: fields})
	}

	if nt.Source != "" {
		msg.Blocks = append(msg.Blocks, block{
			Type:     "context",
			Elements: []*text{{Type: "mrkdwn", Text: "_Source: " + nt.Source + "_"}},
		})
	}
	return msg
}

func levelEmoji(level notifier.Level) string {
	switch level {
	case notifier.LevelSuccess:
		return ":white_check_mark:"
	case notifier.LevelWarning:
		return ":warning:"
	default:
		return ":information_source:"
	}
}
