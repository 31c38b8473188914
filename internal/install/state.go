package install

import "fmt"

// State is a step of one install run.
type State int

const (
	StateNone State = iota
	StatePlanned
	StateDownloading
	StateValid
	StateMerging
	StateInvalid
	StateFallbackDownloading
	StateInstalled
	StateFatalFailed
)

var stateNames = map[State]string{
	StateNone:                "none",
	StatePlanned:             "planned",
	StateDownloading:         "downloading",
	StateValid:               "valid",
	StateMerging:             "merging",
	StateInvalid:             "invalid",
	StateFallbackDownloading: "fallback_downloading",
	StateInstalled:           "installed",
	StateFatalFailed:         "fatal_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the run is over.
func (s State) Terminal() bool {
	return s == StateInstalled || s == StateFatalFailed
}

// transitions lists the allowed moves. StateNone covers the work before a
// plan exists: an existing destination goes straight to Installed, and a
// failure to resolve the release is fatal. Installed can still become
// FatalFailed when the binary cannot be made executable or launched.
var transitions = map[State][]State{
	StateNone:                {StatePlanned, StateInstalled, StateFatalFailed},
	StatePlanned:             {StateDownloading, StateFatalFailed},
	StateDownloading:         {StateValid, StateInvalid, StateFatalFailed},
	StateValid:               {StateMerging, StateFatalFailed},
	StateMerging:             {StateInstalled, StateFatalFailed},
	StateInvalid:             {StateFallbackDownloading, StateFatalFailed},
	StateFallbackDownloading: {StateInstalled, StateFatalFailed},
	StateInstalled:           {StateFatalFailed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
