package autosave

import "fmt"

// Phase is the controller state of one editing session.
type Phase int

// Phases.
const (
	Clean Phase = iota
	Dirty
	Saving
	Submitted
)

func (p Phase) String() string {
	switch p {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	case Submitted:
		return "submitted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Event drives a transition.
type Event int

// Events.
const (
	EventEdit Event = iota
	EventDebounceFired
	EventForceSave
	EventSaveSucceeded
	EventSaveFailed
	EventSubmitted
	EventReset
)

func (e Event) String() string {
	switch e {
	case EventEdit:
		return "edit"
	case EventDebounceFired:
		return "debounce_fired"
	case EventForceSave:
		return "force_save"
	case EventSaveSucceeded:
		return "save_succeeded"
	case EventSaveFailed:
		return "save_failed"
	case EventSubmitted:
		return "submitted"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// State is the single authoritative FSM value. Pending marks edits that
// arrived while a save was in flight.
type State struct {
	Phase   Phase `json:"phase"`
	Pending bool  `json:"pending"`
}

// Apply is the pure transition function.
//
//	from \ event | Edit           | Debounce/Force | SaveSucceeded        | SaveFailed | Submitted | Reset
//	Clean        | Dirty          | Clean          | error                | error      | Submitted | Clean
//	Dirty        | Dirty          | Saving         | error                | error      | Submitted | Clean
//	Saving       | Saving+Pending | Saving         | Clean / Dirty if Pnd | Dirty      | Submitted | Clean
//	Submitted    | Dirty          | Submitted      | error                | error      | Submitted | Clean
func Apply(s State, e Event) (State, error) {
	switch e {
	case EventSubmitted:
		return State{Phase: Submitted}, nil
	case EventReset:
		return State{Phase: Clean}, nil
	}

	switch s.Phase {
	case Clean, Dirty, Submitted:
		switch e {
		case EventEdit:
			return State{Phase: Dirty}, nil
		case EventDebounceFired, EventForceSave:
			if s.Phase == Dirty {
				return State{Phase: Saving}, nil
			}
			return s, nil
		}
	case Saving:
		switch e {
		case EventEdit:
			return State{Phase: Saving, Pending: true}, nil
		case EventDebounceFired, EventForceSave:
			return s, nil
		case EventSaveSucceeded:
			if s.Pending {
				return State{Phase: Dirty}, nil
			}
			return State{Phase: Clean}, nil
		case EventSaveFailed:
			return State{Phase: Dirty}, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s.Phase)
}
