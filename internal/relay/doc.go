// Package relay is the signaling hub: a registry of connected sessions that
// forwards every message a session sends to every other session.
//
// The hub never decodes what it forwards. Frames are opaque byte slices that
// the transport encoded; a slow receiver only ever fills its own bounded send
// queue and never stalls a broadcast.
package relay
