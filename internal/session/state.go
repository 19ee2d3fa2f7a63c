package session

import (
	"sidehustlers/internal/identity"
	"sidehustlers/internal/models"
)

type State int

const (
	StateUnknown State = iota
	StateLoggedOut
	StateLoggedInIncomplete
	StateLoggedInComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateLoggedInIncomplete:
		return "logged_in_incomplete"
	case StateLoggedInComplete:
		return "logged_in_complete"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is an immutable view of a session. Err holds the German message
// of the last failed action or profile fetch.
type Snapshot struct {
	State    State              `json:"state"`
	Identity *identity.Identity `json:"identity"`
	Profile  models.Profile     `json:"-"`
	Err      string             `json:"error,omitempty"`
	Loading  bool               `json:"loading"`
}

func (s Snapshot) IsProfileComplete() bool {
	return s.Profile != nil && s.Profile.IsComplete()
}

func (s Snapshot) LoggedIn() bool {
	return s.Identity != nil
}
