// Package discord posts Mission Control notifications to a Discord webhook.
package discord

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Strob0t/missioncontrol/internal/adapter/webhook"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/port/notifier"
)

const (
	providerName = "discord"
	// Embed limits.
	maxTitleChars       = 256
	maxDescriptionChars = 4096
	maxFieldNameChars   = 256
	maxFieldValueChars  = 1024
	maxFields           = 25
)

// Notifier renders notifications as a single embed.
type Notifier struct {
	webhookURL string
	username   string
	httpClient *http.Client
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a Discord notifier. username overrides the webhook's
// display name when set.
func NewNotifier(webhookURL, username string) *Notifier {
	return &Notifier{webhookURL: webhookURL, username: username, httpClient: webhook.NewClient()}
}

func (n *Notifier) Name() string { return providerName }

type payload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *footer      `json:"footer,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type footer struct {
	Text string `json:"text"`
}

func (n *Notifier) Send(ctx context.Context, nt notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}
	// Discord answers 204 on success.
	return webhook.PostJSON(ctx, n.httpClient, providerName, n.webhookURL, payload{
		Username: n.username,
		Embeds:   []embed{render(nt)},
	})
}

func render(nt notifier.Notification) embed {
	e := embed{
		Title:       agent.Truncate(nt.Title, maxTitleChars),
		Description: agent.Truncate(nt.Message, maxDescriptionChars),
		Color:       levelColor(nt.Level),
	}
	for i, f := range nt.Fields {
		if i == maxFields-1 && len(nt.Fields) > maxFields {
			e.Fields = append(e.Fields, embedField{
				Name:  "…",
				Value: fmt.Sprintf("%d more", len(nt.Fields)-i),
			})
			break
		}
		e.Fields = append(e.Fields, embedField{
			Name:  agent.Truncate(f.Label, maxFieldNameChars),
			Value: agent.Truncate(f.Value, maxFieldValueChars),
		})
	}
	if nt.Source != "" {
		e.Footer = &footer{Text: "Source: " + nt.Source}
	}
	return e
}

func levelColor(level notifier.Level) int {
	switch level {
	case notifier.LevelSuccess:
		return 0x2ECC71
	case notifier.LevelWarning:
		return 0xF39C12
	default:
		return 0x3498DB
	}
}
