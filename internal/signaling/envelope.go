package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var ErrInvalidEnvelope = errors.New("signaling: invalid envelope")

// Kind tags which of the three envelope variants is present.
type Kind int

const (
	KindInvalid Kind = iota
	KindOffer
	KindAnswer
	KindICE
)

func (k Kind) String() string {
	switch k {
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	case KindICE:
		return "ice"
	default:
		return "invalid"
	}
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func SessionDescriptionFromPion(desc webrtc.SessionDescription) SessionDescription {
	return SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (d SessionDescription) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch d.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

// Candidate mirrors RTCIceCandidateInit as browsers serialize it.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// Envelope carries exactly one of Offer, Answer or ICE.
type Envelope struct {
	Offer  *SessionDescription `json:"offer,omitempty"`
	Answer *SessionDescription `json:"answer,omitempty"`
	ICE    *Candidate          `json:"ice,omitempty"`
}

func OfferEnvelope(desc webrtc.SessionDescription) Envelope {
	d := SessionDescriptionFromPion(desc)
	return Envelope{Offer: &d}
}

func AnswerEnvelope(desc webrtc.SessionDescription) Envelope {
	d := SessionDescriptionFromPion(desc)
	return Envelope{Answer: &d}
}

func ICEEnvelope(init webrtc.ICECandidateInit) Envelope {
	c := CandidateFromPion(init)
	return Envelope{ICE: &c}
}

func (e Envelope) Kind() Kind {
	n := 0
	kind := KindInvalid
	if e.Offer != nil {
		n++
		kind = KindOffer
	}
	if e.Answer != nil {
		n++
		kind = KindAnswer
	}
	if e.ICE != nil {
		n++
		kind = KindICE
	}
	if n != 1 {
		return KindInvalid
	}
	return kind
}

func (e Envelope) Validate() error {
	switch e.Kind() {
	case KindOffer:
		return validateDescription(e.Offer, "offer")
	case KindAnswer:
		return validateDescription(e.Answer, "answer")
	case KindICE:
		// An empty candidate is the end-of-candidates marker.
		return nil
	default:
		return fmt.Errorf("%w: want exactly one of offer, answer, ice", ErrInvalidEnvelope)
	}
}

func validateDescription(d *SessionDescription, want string) error {
	if d.Type != want {
		return fmt.Errorf("%w: %s has type %q", ErrInvalidEnvelope, want, d.Type)
	}
	if d.SDP == "" {
		return fmt.Errorf("%w: %s missing sdp", ErrInvalidEnvelope, want)
	}
	return nil
}

// ParseEnvelope decodes and validates an envelope. Unknown fields inside the
// variants are tolerated since browsers add their own.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
