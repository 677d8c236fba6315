package live

import (
	"encoding/json"
	"fmt"
)

// Event is a typed notification from a live session. Use a type switch to
// handle the concrete variants.
type Event interface {
	liveEventType() string
}

// StateChangedEvent reports a session state transition.
type StateChangedEvent struct {
	From State
	To   State
}

func (StateChangedEvent) liveEventType() string { return "state_changed" }

// SetupCompleteEvent reports that the endpoint acknowledged session setup.
type SetupCompleteEvent struct{}

func (SetupCompleteEvent) liveEventType() string { return "setup_complete" }

// AudioChunkEvent carries one decoded PCM chunk of model speech.
type AudioChunkEvent struct {
	PCM        []byte
	SampleRate int
}

func (AudioChunkEvent) liveEventType() string { return "audio_chunk" }

// TextEvent carries the text parts of a model turn, when present.
type TextEvent struct {
	Text string
}

func (TextEvent) liveEventType() string { return "text" }

// TurnCompleteEvent reports that the model finished its current turn.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) liveEventType() string { return "turn_complete" }

// InterruptedEvent reports that the model's turn was cut off by user
// speech. Queued playback for the turn should be discarded.
type InterruptedEvent struct{}

func (InterruptedEvent) liveEventType() string { return "interrupted" }

// ToolCallEvent carries an opaque tool invocation payload for the
// application to interpret.
type ToolCallEvent struct {
	Raw json.RawMessage
}

func (ToolCallEvent) liveEventType() string { return "tool_call" }

// ErrorEvent reports a transport failure. The session is unusable after
// this event.
type ErrorEvent struct {
	Err error
}

func (ErrorEvent) liveEventType() string { return "error" }

// ClosedEvent is the final event on the stream.
type ClosedEvent struct{}

func (ClosedEvent) liveEventType() string { return "closed" }

// EventName returns the wire-style name of an event for logs.
func EventName(ev Event) string {
	if ev == nil {
		return "nil"
	}
	return ev.liveEventType()
}

func eventDetail(ev Event) string {
	switch e := ev.(type) {
	case StateChangedEvent:
		return fmt.Sprintf("%s -> %s", e.From, e.To)
	case AudioChunkEvent:
		return fmt.Sprintf("%d bytes @ %d Hz", len(e.PCM), e.SampleRate)
	case TextEvent:
		if len(e.Text) > 48 {
			return e.Text[:48] + "..."
		}
		return e.Text
	case ErrorEvent:
		return e.Err.Error()
	default:
		return ""
	}
}
