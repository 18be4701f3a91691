package relay

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/yashikakaushik06/whiteboard-app/internal/metrics"
)

type Config struct {
	// MaxSessions caps registered sessions. 0 means unlimited.
	MaxSessions int
	// SendQueueBytes bounds each session's queued outbound bytes. 0 means
	// unbounded.
	SendQueueBytes int
	// PeerLeftFrame, when set, builds the frame sent to every remaining
	// session after one disconnects.
	PeerLeftFrame func(id string) []byte
}

// Hub owns the session registry. Registry mutation and broadcast iteration
// are serialized by mu, so a frame is either delivered to a session or the
// session was not registered when the broadcast started.
type Hub struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewHub(cfg Config, log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Connect registers a new session with a fresh id.
func (h *Hub) Connect() (*Session, error) {
	for attempt := 0; attempt < 3; attempt++ {
		id := newSessionID()

		h.mu.Lock()
		if h.cfg.MaxSessions > 0 && len(h.sessions) >= h.cfg.MaxSessions {
			h.mu.Unlock()
			h.metrics.Inc(metrics.DropReasonTooManySessions)
			return nil, ErrTooManySessions
		}
		if _, taken := h.sessions[id]; taken {
			h.mu.Unlock()
			continue
		}
		s := newSession(id, h, h.cfg.SendQueueBytes)
		h.sessions[id] = s
		active := len(h.sessions)
		h.mu.Unlock()

		h.metrics.Inc(metrics.SignalingSessionsOpened)
		h.log.Info("client connected", "session_id", id, "active_sessions", active)
		return s, nil
	}
	return nil, errors.New("failed to allocate unique session id")
}

// Propagate hands frame to every registered session except from and returns
// the number of sessions it was queued for. A sender that is no longer
// registered delivers nothing.
func (h *Hub) Propagate(from *Session, frame []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if from == nil || h.sessions[from.id] != from {
		return 0, ErrSessionClosed
	}
	h.metrics.Inc(metrics.SignalingMessagesRelayed)
	return h.broadcastLocked(from.id, frame), nil
}

func (h *Hub) broadcastLocked(exceptID string, frame []byte) int {
	delivered := 0
	for id, s := range h.sessions {
		if id == exceptID {
			continue
		}
		if !s.queue.Enqueue(frame) {
			h.metrics.Inc(metrics.DropReasonSendQueueFull)
			h.log.Warn("dropping frame for slow session", "session_id", id, "bytes", len(frame))
			continue
		}
		delivered++
	}
	h.metrics.Add(metrics.SignalingFramesDelivered, uint64(delivered))
	return delivered
}

// Disconnect deregisters s. It is equivalent to s.Close(reason).
func (h *Hub) Disconnect(s *Session, reason string) {
	h.disconnect(s, reason)
}

func (h *Hub) disconnect(s *Session, reason string) {
	h.mu.Lock()
	if h.sessions[s.id] != s {
		h.mu.Unlock()
		s.markClosed()
		return
	}
	delete(h.sessions, s.id)
	s.markClosed()
	active := len(h.sessions)

	announced := 0
	if h.cfg.PeerLeftFrame != nil && active > 0 {
		announced = h.broadcastLocked(s.id, h.cfg.PeerLeftFrame(s.id))
		h.metrics.Add(metrics.SignalingPeerLeftSent, uint64(announced))
	}
	h.mu.Unlock()

	h.metrics.Inc(metrics.SignalingSessionsClosed)
	h.log.Info("client disconnected", "session_id", s.id, "reason", reason, "active_sessions", active, "peer_left_sent", announced)
}

// ActiveSessions returns the number of registered sessions.
func (h *Hub) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// SessionIDs returns the registered ids in sorted order.
func (h *Hub) SessionIDs() []string {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// CloseAll deregisters every session, used during shutdown.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close(reason)
	}
}
