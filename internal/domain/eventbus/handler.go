package eventbus

import (
	"plantid-server-go/internal/platform/logging"
)

// LogHandler writes shell lifecycle events to the logger.
type LogHandler struct {
	logger *logging.Logger
}

// NewLogHandler creates a lifecycle logger.
func NewLogHandler(logger *logging.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

// Handle logs one event.
func (h *LogHandler) Handle(eventType string, data ShellEventData) {
	switch eventType {
	case EventShellInstalled:
		h.logger.InfoTag("Shell", "generation %s installed (%d files, %s)", data.Generation, data.Files, data.Duration)
	case EventShellInstallFailed:
		h.logger.WarnTag("Shell", "generation %s install failed: %s", data.Generation, data.Error)
	case EventShellActivated:
		if data.Previous != "" {
			h.logger.InfoTag("Shell", "generation %s activated, replacing %s", data.Generation, data.Previous)
			return
		}
		h.logger.InfoTag("Shell", "generation %s activated", data.Generation)
	case EventShellGenerationDeleted:
		h.logger.InfoTag("Shell", "stale generation %s deleted", data.Generation)
	default:
		h.logger.DebugTag("Shell", "unhandled event %s", eventType)
	}
}

// SetupLogHandlers subscribes h to every lifecycle topic on bus.
func SetupLogHandlers(bus Bus, h *LogHandler) error {
	topics := []string{
		EventShellInstalled,
		EventShellInstallFailed,
		EventShellActivated,
		EventShellGenerationDeleted,
	}
	for _, topic := range topics {
		topic := topic
		if err := bus.Subscribe(topic, func(data ShellEventData) {
			h.Handle(topic, data)
		}); err != nil {
			return err
		}
	}
	return nil
}
