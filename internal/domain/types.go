// Package domain holds the shared subtitle, status, and settings records.
package domain

import "time"

// SourceID identifies one audio source (a PulseAudio source name).
type SourceID string

// Fragment is one recognizer transcript piece.
type Fragment struct {
	Text     string `json:"text"`
	IsFinal  bool   `json:"is_final"`
	Sequence int    `json:"sequence"`
}

// SubtitleEvent is emitted for every recognized utterance (interim or final).
type SubtitleEvent struct {
	SourceID   SourceID `json:"source_id"`
	RunID      string   `json:"run_id,omitempty"`
	Original   string   `json:"original"`
	Translated string   `json:"translated"`
	Timestamp  int64    `json:"timestamp"`
	Interim    bool     `json:"interim"`
	Sequence   int      `json:"sequence"`
}

// InterimPlaceholder marks interim text that is never translated.
const InterimPlaceholder = "..."

// Time returns the event timestamp as a time value.
func (e SubtitleEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// StatusKind identifies session lifecycle notifications.
type StatusKind string

const (
	StatusStarted            StatusKind = "started"
	StatusStopped            StatusKind = "stopped"
	StatusError              StatusKind = "error"
	StatusTranscriptionError StatusKind = "transcription_error"
)

// StatusEvent reports a lifecycle change or a non-fatal problem for one source.
type StatusEvent struct {
	SourceID  SourceID   `json:"source_id"`
	RunID     string     `json:"run_id,omitempty"`
	Kind      StatusKind `json:"kind"`
	Message   string     `json:"message,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// NewStatus builds a status event stamped with the current time.
func NewStatus(source SourceID, runID string, kind StatusKind, message string) StatusEvent {
	return StatusEvent{
		SourceID:  source,
		RunID:     runID,
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}
