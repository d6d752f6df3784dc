// Package broadcast defines the port for pushing live dashboard events.
package broadcast

import "context"

// Event types pushed to dashboard clients.
const (
	EventSnapshotUpdated   = "snapshot.updated"
	EventWatchdogCompleted = "watchdog.completed"
	EventMirrorCompleted   = "mirror.completed"
)

// Broadcaster sends events to every connected client.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
