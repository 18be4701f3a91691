// Package webrtcpeer drives one whiteboard PeerConnection through offer/answer
// negotiation over the signaling relay.
//
// A Peer is either the caller, which opens the "draw" data channel and sends
// the offer, or the callee, which answers the first offer it receives. Local
// ICE candidates are only transmitted after the description they belong to;
// remote candidates that arrive early are queued until a remote description
// exists.
package webrtcpeer
