package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateCapturing  State = "capturing"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
	StateError      State = "error"
)

const (
	EventPressStart Event = "press_start"
	EventPressStop  Event = "press_stop"
	EventCaptured   Event = "captured"
	EventAnswered   Event = "answered"
	EventSpoken     Event = "spoken"
	EventFail       Event = "fail"
	EventReset      Event = "reset"
)

// Transition applies one event to the current state. EventFail is accepted
// from any non-idle state; every other event is valid in exactly one state.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		if current == StateIdle {
			return current, invalidTransition(current, event)
		}
		return StateError, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventPressStart:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventPressStop:
			return StateCapturing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCapturing:
		switch event {
		case EventCaptured:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventAnswered:
			return StateSpeaking, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSpeaking:
		switch event {
		case EventSpoken:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Busy reports whether a state belongs to an in-flight session.
func Busy(state State) bool {
	return state != StateIdle
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
