package webrtcpeer

import "fmt"

// State is the negotiation state of a Peer.
type State int

const (
	StateIdle State = iota
	// StateOfferCreated: local offer set, not yet transmitted.
	StateOfferCreated
	// StateAwaitingAnswer: offer transmitted.
	StateAwaitingAnswer
	// StateRemoteDescriptionSet: remote offer applied, answer not yet sent.
	StateRemoteDescriptionSet
	// StateAnswering: answer transmitted. Terminal for the callee.
	StateAnswering
	// StateConnected: remote answer applied. Terminal for the caller.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferCreated:
		return "offer_created"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateRemoteDescriptionSet:
		return "remote_description_set"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateIdle:                 {StateOfferCreated, StateRemoteDescriptionSet},
	StateOfferCreated:         {StateAwaitingAnswer, StateConnected},
	StateAwaitingAnswer:       {StateConnected},
	StateRemoteDescriptionSet: {StateAnswering},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// awaitingAnswer reports whether an inbound answer is in place.
func (s State) awaitingAnswer() bool {
	return s == StateOfferCreated || s == StateAwaitingAnswer
}

// hasRemoteDescription reports whether remote candidates can be applied
// directly.
func (s State) hasRemoteDescription() bool {
	return s == StateRemoteDescriptionSet || s == StateAnswering || s == StateConnected
}
