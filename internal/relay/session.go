package relay

import (
	"sync"
)

// Session is one connected signaling client. It carries no application
// state: just an id, a liveness bit and its outbound queue.
type Session struct {
	id    string
	hub   *Hub
	queue *sendQueue

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id string, hub *Hub, queueBytes int) *Session {
	return &Session{
		id:    id,
		hub:   hub,
		queue: newSendQueue(queueBytes),
		done:  make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session has been deregistered.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Next blocks until the next outbound frame is available. It returns false
// after the session closes; the transport's writer loop should then exit.
func (s *Session) Next() ([]byte, bool) {
	return s.queue.Dequeue()
}

// Dropped reports how many frames for this session were discarded because
// its send queue was full.
func (s *Session) Dropped() uint64 {
	return s.queue.DropCount()
}

// Close deregisters the session from its hub. reason is logged. It is safe to
// call more than once; only the first call has any effect.
func (s *Session) Close(reason string) {
	s.hub.disconnect(s, reason)
}

// markClosed runs with the hub lock held.
func (s *Session) markClosed() bool {
	closed := false
	s.closeOnce.Do(func() {
		close(s.done)
		s.queue.Close()
		closed = true
	})
	return closed
}
