package dispatch

import "fmt"

// State is the dispatch state of one principal.
type State int32

const (
	Idle State = iota
	Sending
	Succeeded
	Failed
)

var stateNames = [...]string{
	Idle:      "idle",
	Sending:   "sending",
	Succeeded: "succeeded",
	Failed:    "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// Transition is reported to observers on every state change.
type Transition struct {
	Principal string
	From      State
	To        State
}
