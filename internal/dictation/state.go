package dictation

import (
	"time"

	"github.com/codiris/voice/pkg/mode"
)

// State is the phase of the current dictation session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
	StateDelivered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether a session is in progress.
func (s State) Busy() bool { return s == StateRecording || s == StateProcessing }

// EventKind classifies an [Event].
type EventKind string

const (
	// EventState is emitted on every state transition.
	EventState EventKind = "state"

	// EventPartial carries an interim transcript while recording.
	EventPartial EventKind = "partial"

	// EventDelivered carries the text handed to the insertion sink.
	EventDelivered EventKind = "delivered"

	// EventNoSpeech is emitted when the session produced no transcript.
	EventNoSpeech EventKind = "no_speech"

	// EventError is emitted when capture, transcription setup or delivery
	// failed.
	EventError EventKind = "error"
)

// Event is an observable step of a session.
type Event struct {
	Kind      EventKind
	SessionID string
	State     State
	Text      string
	Err       error
}

// Snapshot is a consistent copy of the controller's session data.
type Snapshot struct {
	SessionID  string
	State      State
	Mode       mode.Mode
	Partial    string
	Transcript string
	Result     string
	Err        error
	StartedAt  time.Time
}
