package ipc

import (
	"time"

	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/translate"
)

// Commands understood by the daemon.
const (
	CommandStart          = "start"
	CommandStop           = "stop"
	CommandUpdateSettings = "update_settings"
	CommandStatus         = "status"
	CommandSessions       = "sessions"
	CommandDisplay        = "display"
)

type Request struct {
	Command  string                `json:"command"`
	SourceID string                `json:"source_id,omitempty"`
	Patch    *domain.SettingsPatch `json:"patch,omitempty"`
	// Display replaces the persisted overlay display record when set.
	Display *domain.Display `json:"display,omitempty"`
}

type Response struct {
	OK       bool             `json:"ok"`
	State    string           `json:"state,omitempty"`
	Message  string           `json:"message,omitempty"`
	Error    string           `json:"error,omitempty"`
	Status   *SourceStatus    `json:"status,omitempty"`
	Sessions []SourceStatus   `json:"sessions,omitempty"`
	Settings *domain.Settings `json:"settings,omitempty"`
	Display  *domain.Display  `json:"display,omitempty"`
}

// SourceStatus is the status payload for one source.
type SourceStatus struct {
	SourceID        string            `json:"source_id"`
	Capturing       bool              `json:"capturing"`
	HasCredential   bool              `json:"has_credential"`
	Supported       bool              `json:"supported"`
	State           string            `json:"state"`
	RunID           string            `json:"run_id,omitempty"`
	RestartAttempts int               `json:"restart_attempts"`
	Paused          bool              `json:"paused,omitempty"`
	Device          string            `json:"device,omitempty"`
	LastActivityAt  time.Time         `json:"last_activity_at,omitzero"`
	Settings        *domain.Settings  `json:"settings,omitempty"`
	Translation     *translate.Stats  `json:"translation,omitempty"`
}
