package metrics

import "sync"

// Event names. The relay and the peer share one registry type so tests on
// either side can assert on counters.
const (
	SignalingSessionsOpened  = "signaling_sessions_opened"
	SignalingSessionsClosed  = "signaling_sessions_closed"
	SignalingMessagesRelayed = "signaling_messages_relayed"
	// SignalingFramesDelivered counts frames handed to recipients; one
	// relayed message yields one frame per other session.
	SignalingFramesDelivered = "signaling_frames_delivered"
	SignalingPeerLeftSent    = "signaling_peer_left_sent"

	DropReasonInvalidEnvelope = "signaling_drop_invalid_envelope"
	DropReasonRateLimited     = "signaling_drop_rate_limited"
	DropReasonSendQueueFull   = "signaling_drop_send_queue_full"
	DropReasonTooManySessions = "signaling_drop_too_many_sessions"
	DropReasonOriginRejected  = "signaling_drop_origin_rejected"

	DrawMessagesSent     = "draw_messages_sent"
	DrawMessagesReceived = "draw_messages_received"
	// DrawMessagesDropped counts local events discarded because the draw
	// channel was not open.
	DrawMessagesDropped = "draw_messages_dropped_channel_not_open"
	DrawMessagesInvalid = "draw_messages_invalid"

	PeerNegotiationErrors   = "peer_negotiation_errors"
	PeerUnexpectedEnvelopes = "peer_unexpected_envelopes"
	PeerCandidatesQueued    = "peer_remote_candidates_queued"
)

// Metrics is a concurrency-safe counter registry. A nil *Metrics is valid and
// discards everything so components can be built without one.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
