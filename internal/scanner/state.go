package scanner

import "fmt"

// State is a capture loop state.
type State int

const (
	Idle State = iota
	Requesting
	Streaming
	Detecting
	Detected // paused while the decode handshake runs
	Stopped
)

var stateNames = [...]string{"idle", "requesting", "streaming", "detecting", "detected", "stopped"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}
