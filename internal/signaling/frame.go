package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// EventConnected is sent once by the server with the new session id.
	EventConnected = "connected"
	// EventPropagate is sent by peers; data is an Envelope.
	EventPropagate = "propagate"
	// EventOnPropagate is what the other peers receive.
	EventOnPropagate = "onpropagate"
	// EventPeerLeft is only sent when the relay announces departures.
	EventPeerLeft = "peerleft"
)

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type sessionInfo struct {
	ID string `json:"id"`
}

func ParseFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, err
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("frame missing event")
	}
	return f, nil
}

func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return rawFrame(event, raw), nil
}

// rawFrame splices data into a frame byte-for-byte. data must already be
// valid JSON.
func rawFrame(event string, data []byte) []byte {
	name, _ := json.Marshal(event)
	var buf bytes.Buffer
	buf.Grow(len(data) + len(name) + 20)
	buf.WriteString(`{"event":`)
	buf.Write(name)
	buf.WriteString(`,"data":`)
	buf.Write(data)
	buf.WriteByte('}')
	return buf.Bytes()
}

// PeerLeftFrame builds the departure notice for relay.Config.PeerLeftFrame.
func PeerLeftFrame(id string) []byte {
	b, _ := EncodeFrame(EventPeerLeft, sessionInfo{ID: id})
	return b
}
