// Package fsm models the daemon connection lifecycle.
package fsm

import "fmt"

type State string

type Event string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

const (
	EventDial       Event = "dial"
	EventDialed     Event = "dialed"
	EventDialFailed Event = "dial_failed"
	EventDrop       Event = "drop"
	EventClose      Event = "close"
)

func Transition(current State, event Event) (State, error) {
	if event == EventClose {
		return StateClosed, nil
	}

	switch current {
	case StateDisconnected:
		switch event {
		case EventDial:
			return StateConnecting, nil
		case EventDrop:
			return StateDisconnected, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnecting:
		switch event {
		case EventDialed:
			return StateConnected, nil
		case EventDialFailed:
			return StateDisconnected, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnected:
		switch event {
		case EventDrop:
			return StateDisconnected, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateClosed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
