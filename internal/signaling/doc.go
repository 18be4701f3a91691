// Package signaling is the WebSocket transport between whiteboard peers and
// the relay hub.
//
// Every WebSocket message is a JSON frame {"event": ..., "data": ...}. Peers
// send "propagate" frames whose data is an Envelope; the server checks the
// envelope tag and forwards the data bytes unchanged to every other peer as
// "onpropagate".
package signaling
