// Package notifier defines the outbound notification port used to tell
// operators about watchdog activity outside the dashboard.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is missing required settings.
var ErrNotConfigured = errors.New("notifier: not configured")

// Level is the severity shown by a chat integration.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
)

// Field is one labelled line of a notification, such as a retried run and
// its outcome. Integrations without structured layouts render it as
// "Label: Value".
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title   string  `json:"title"`
	Message string  `json:"message"`
	Level   Level   `json:"level"`
	Source  string  `json:"source"` // event that produced it, e.g. "watchdog.retried"
	Fields  []Field `json:"fields,omitempty"`
}

// Notifier delivers notifications to one external channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}
