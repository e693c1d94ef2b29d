package voice

import (
	"time"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/proactive"
)

// State is the session's conversational state.
type State int

const (
	Idle State = iota
	Listening
	Processing
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// EventKind tags a published Event.
type EventKind int

const (
	StateChanged EventKind = iota
	Transcript
	ReplyReceived
	Warning
	Error
	ProactiveAlert
)

// Event is a notification published on Session.Events. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind  EventKind
	From  State
	To    State
	Text  string
	Reply conversation.Reply
	Alert proactive.Result
}

// Clock schedules callbacks. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }
