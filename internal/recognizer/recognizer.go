// Package recognizer adapts streaming speech-to-text services to a restartable
// start/stop/event contract.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rbright/livesub/internal/audio"
	"github.com/rbright/livesub/internal/domain"
)

// ErrorCode names recognizer failures using the Web Speech vocabulary.
type ErrorCode string

const (
	CodeNoSpeech          ErrorCode = "no-speech"
	CodeAudioCapture      ErrorCode = "audio-capture"
	CodeNotAllowed        ErrorCode = "not-allowed"
	CodeServiceNotAllowed ErrorCode = "service-not-allowed"
	CodeNetwork           ErrorCode = "network"
	CodeAborted           ErrorCode = "aborted"
	CodeLanguage          ErrorCode = "language-not-supported"
)

// Class is the session's reaction to an error code.
type Class int

const (
	// ClassReported errors are surfaced to consumers without a state change.
	ClassReported Class = iota
	// ClassRecoverable errors schedule a restart.
	ClassRecoverable
	// ClassPause errors are logged; the session stays Active without input.
	ClassPause
	// ClassFatal errors fail the session.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassRecoverable:
		return "recoverable"
	case ClassPause:
		return "pause"
	case ClassFatal:
		return "fatal"
	default:
		return "reported"
	}
}

// Classify maps an error code to its class.
func Classify(code ErrorCode) Class {
	switch code {
	case CodeNoSpeech:
		return ClassRecoverable
	case CodeAudioCapture:
		return ClassPause
	case CodeNotAllowed, CodeServiceNotAllowed:
		return ClassFatal
	default:
		return ClassReported
	}
}

// Error carries a coded recognizer failure.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("recognizer: %s", e.Code)
	}
	return fmt.Sprintf("recognizer: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the error code carried by err, or CodeNetwork for uncoded errors.
func CodeOf(err error) ErrorCode {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return CodeNetwork
}

// EventKind identifies recognizer events.
type EventKind string

const (
	EventResult EventKind = "result"
	EventEnd    EventKind = "end"
	EventError  EventKind = "error"
)

// Event is delivered on Events(). Result events carry fragments in recognizer
// order; Error events carry a code.
type Event struct {
	Kind      EventKind
	Fragments []domain.Fragment
	Code      ErrorCode
	Message   string
}

// Config is the recognizer-facing subset of session settings.
type Config struct {
	Language       string
	Continuous     bool
	InterimResults bool
	Sensitivity    float64
}

// ConfigFromSettings derives a recognizer configuration.
func ConfigFromSettings(s domain.Settings) Config {
	return Config{
		Language:       s.SourceLanguage,
		Continuous:     s.Continuous,
		InterimResults: s.InterimResults,
		Sensitivity:    s.Sensitivity,
	}
}

// Recognizer is one restartable recognition adapter bound to an audio handle.
// Start may be called again after an End event. Sequence indices on fragments
// keep increasing across restarts.
type Recognizer interface {
	Start(ctx context.Context, cfg Config) error
	Stop() error
	Events() <-chan Event
}

// Factory attaches a new Recognizer to an audio handle.
type Factory func(handle audio.Handle, logger *slog.Logger) Recognizer
