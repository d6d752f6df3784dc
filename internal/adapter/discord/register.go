package discord

import "github.com/Strob0t/missioncontrol/internal/port/notifier"

func init() {
	notifier.Register(providerName, func(s notifier.Settings) (notifier.Notifier, error) {
		if s["webhook_url"] == "" {
			return nil, notifier.ErrNotConfigured
		}
		return NewNotifier(s["webhook_url"], s["username"]), nil
	})
}
