package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateActive     State = "active"
	StateRestarting State = "restarting"
	StateStopping   State = "stopping"
	StateFailed     State = "failed"
)

const (
	EventStart          Event = "start"
	EventHandleReady    Event = "handle_ready"
	EventHandleFailure  Event = "handle_failure"
	EventStartFailed    Event = "start_failed"
	EventRecognizerEnd  Event = "recognizer_end"
	EventRecoverable    Event = "recoverable_error"
	EventFatal          Event = "fatal_error"
	EventSingleShotDone Event = "single_shot_done"
	EventBackoffElapsed Event = "backoff_elapsed"
	EventStop           Event = "stop"
	EventCleanupDone    Event = "cleanup_done"
	EventAcknowledge    Event = "acknowledge"
)

// transitions lists every legal edge of a capture session.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateStarting,
	},
	StateStarting: {
		EventHandleReady:   StateActive,
		EventHandleFailure: StateFailed,
		EventFatal:         StateFailed,
		EventStartFailed:   StateRestarting,
		EventStop:          StateStopping,
	},
	StateActive: {
		EventRecognizerEnd:  StateRestarting,
		EventRecoverable:    StateRestarting,
		EventSingleShotDone: StateStopping,
		EventStop:           StateStopping,
		EventFatal:          StateFailed,
	},
	StateRestarting: {
		EventBackoffElapsed: StateStarting,
		EventStop:           StateStopping,
		EventFatal:          StateFailed,
	},
	StateStopping: {
		EventCleanupDone: StateIdle,
	},
	StateFailed: {
		EventStop:        StateIdle,
		EventAcknowledge: StateIdle,
	},
}

// Terminal reports whether a new session may replace one in this state.
func Terminal(state State) bool {
	return state == StateIdle || state == StateFailed
}

// Transition returns the state reached from current on event. An illegal
// event leaves current unchanged and returns an error.
func Transition(current State, event Event) (State, error) {
	edges, ok := transitions[current]
	if !ok {
		return current, fmt.Errorf("unknown state %q", current)
	}
	next, ok := edges[event]
	if !ok {
		return current, fmt.Errorf("invalid transition: %s --(%s)--> ?", current, event)
	}
	return next, nil
}
