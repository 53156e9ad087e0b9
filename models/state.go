package models

import (
	"github.com/cockroachdb/errors"
)

// State is the state a miner holds for a transaction.
type State int

const (
	Created State = iota
	PreConsensus
	Consensus
	Disconsensed
)

var stateNames = [...]string{
	Created:      "CREATED",
	PreConsensus: "PRE_CONSENSUS",
	Consensus:    "CONSENSUS",
	Disconsensed: "DISCONSENSED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name so stored histories stay readable.
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, errors.Newf("unknown state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return errors.Newf("unknown state %q", text)
}

// Event is one entry of a transaction's history.
type Event struct {
	Tick  int   `json:"tick"`
	Miner int   `json:"miner"`
	State State `json:"state"`
}
