// Package messagequeue defines the event bus port: Mission Control
// announces finished scans and mirrored replies on it, and accepts remote
// watchdog triggers from it.
package messagequeue

import "context"

// Handler processes one message. ctx carries the publisher's request ID
// when there was one. A returned error asks the bus to redeliver.
type Handler func(ctx context.Context, subject string, data []byte) error

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subscriber delivers messages on one subject to a handler until the
// returned cancel function is called.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)
}

// Queue is a connected bus.
type Queue interface {
	Publisher
	Subscriber
	// Drain lets in-flight messages finish, then closes the connection.
	Drain() error
	Close() error
	IsConnected() bool
}

// Subject suffixes, appended to the configured prefix (default "missioncontrol").
const (
	SubjectWatchdogCompleted = "watchdog.completed" // scan finished (non-skipped)
	SubjectWatchdogTrigger   = "watchdog.trigger"   // remote request to run a scan
	SubjectMirrorCompleted   = "mirror.completed"   // summary forwarded to the main session
)

// Subject joins a prefix and a suffix.
func Subject(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "." + suffix
}
