// Package service contains the Mission Control application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/port/notifier"
)

// SourceWatchdogRetried tags the notification sent after a scan requeued runs.
const SourceWatchdogRetried = "watchdog.retried"

// NotificationService delivers Mission Control notifications to every
// configured chat integration in parallel.
type NotificationService struct {
	notifiers []notifier.Notifier
}

func NewNotificationService(notifiers ...notifier.Notifier) *NotificationService {
	return &NotificationService{notifiers: notifiers}
}

// Notify sends n to every notifier and waits for all of them. Failures are
// logged per provider and returned joined; one failing provider does not
// stop the others.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) error {
	if s == nil || len(s.notifiers) == 0 {
		return nil
	}

	errs := make([]error, len(s.notifiers))
	var g errgroup.Group
	for i, provider := range s.notifiers {
		g.Go(func() error {
			if err := provider.Send(ctx, n); err != nil {
				slog.Warn("notification send failed", "provider", provider.Name(), "source", n.Source, "error", err)
				errs[i] = fmt.Errorf("%s: %w", provider.Name(), err)
				return nil
			}
			slog.Debug("notification sent", "provider", provider.Name(), "source", n.Source)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Enabled reports whether any notifier is configured.
func (s *NotificationService) Enabled() bool {
	return s != nil && len(s.notifiers) > 0
}

// retryNotification summarises one watchdog scan, one field per stalled run.
func retryNotification(items []watchdog.RetryItem, threshold time.Duration) notifier.Notification {
	n := notifier.Notification{
		Title:  "Mission Control watchdog",
		Level:  notifier.LevelSuccess,
		Source: SourceWatchdogRetried,
		Fields: make([]notifier.Field, 0, len(items)),
	}

	retried := 0
	for _, item := range items {
		label := "session " + item.SessionKey
		if item.RunID != "" {
			label = "run " + item.RunID
		}
		stalled := watchdog.FormatMinutes(time.Duration(item.StalledForMs) * time.Millisecond)

		var value string
		switch {
		case item.Requested:
			retried++
			value = fmt.Sprintf("retried after %s stall", stalled)
			if item.NewRunID != "" {
				value += " as " + item.NewRunID
			}
		default:
			if item.Failed {
				n.Level = notifier.LevelWarning
			}
			reason := item.SkippedReason
			if reason == "" {
				reason = "unknown reason"
			}
			value = fmt.Sprintf("not retried after %s stall: %s", stalled, reason)
		}
		n.Fields = append(n.Fields, notifier.Field{Label: label, Value: value})
	}

	n.Message = fmt.Sprintf("Retried %d of %d stalled runs. Stalled threshold: %s.",
		retried, len(items), watchdog.FormatMinutes(threshold))
	return n
}
