// Package draw implements the whiteboard's drawing sync protocol: the JSON
// messages exchanged over the "draw" data channel and the board model both
// peers apply them to.
//
// Wire order matters. A pointer-down carries the pen style together with the
// stroke start so the receiver switches style before starting the path, and
// every following "draw" point extends that path until the next "down" or
// "clear". The channel must therefore be ordered and reliable.
package draw
