package main

// Notifier blank imports. Each import registers a notifier factory that
// buildNotifiers enables when its settings are present.

import (
	_ "github.com/Strob0t/missioncontrol/internal/adapter/discord"
	_ "github.com/Strob0t/missioncontrol/internal/adapter/slack"
)
