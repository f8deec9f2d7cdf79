package appointment

import "fmt"

// transitions maps from -> to -> actors allowed to make that move. Terminal
// states have no entry.
var transitions = map[string]map[string][]string{
	StatusPending: {
		StatusAccepted:  {ByDoctor},
		StatusRejected:  {ByDoctor},
		StatusCancelled: {ByPatient, BySystem},
	},
	StatusAccepted: {
		StatusCompleted: {ByDoctor},
		StatusCancelled: {ByPatient},
	},
}

var actions = map[string]string{
	StatusAccepted:  "Appointment accepted",
	StatusRejected:  "Appointment rejected",
	StatusCancelled: "Appointment cancelled",
	StatusCompleted: "Appointment completed",
}

// CheckTransition reports whether actor may move an appointment from one
// status to another. An unknown or illegal move is ErrInvalidTransition; a
// legal move by the wrong party is ErrForbidden.
func CheckTransition(from, to, actor string) error {
	allowed, ok := transitions[from][to]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	for _, a := range allowed {
		if a == actor {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not set status %s", ErrForbidden, actor, to)
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

func actionFor(status string) string {
	if a, ok := actions[status]; ok {
		return a
	}
	return ActionUpdated
}
