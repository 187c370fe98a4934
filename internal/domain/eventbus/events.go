package eventbus

import "time"

// Shell worker lifecycle topics.
const (
	EventShellInstalled         = "shell:installed"
	EventShellInstallFailed     = "shell:install-failed"
	EventShellActivated         = "shell:activated"
	EventShellGenerationDeleted = "shell:generation-deleted"

	// EventShellWriteback carries a fetched response to be cached.
	EventShellWriteback = "shell:writeback"
)

// ShellEventData describes one lifecycle transition.
type ShellEventData struct {
	Generation string        `json:"generation"`
	Previous   string        `json:"previous,omitempty"`
	Files      int           `json:"files,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
}
