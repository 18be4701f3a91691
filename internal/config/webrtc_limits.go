package config

const (
	// DefaultDrawMessageMaxBytes caps a single drawing message on the data
	// channel. Real messages are well under 200 bytes.
	DefaultDrawMessageMaxBytes = 16 * 1024

	// DefaultSCTPMaxReceiveBufferBytes matches pion's own default.
	DefaultSCTPMaxReceiveBufferBytes = 1024 * 1024
)

// minSCTPReceiveBufferBytes is the minimum SCTP receive buffer size that
// pion/sctp will accept during association setup. Values below this break SCTP
// negotiation (INIT/INIT-ACK validation).
const minSCTPReceiveBufferBytes = 1500

// defaultSCTPMaxReceiveBufferBytes keeps the receive buffer comfortably above
// the per-message cap so a burst of pointer moves does not stall the
// association.
func defaultSCTPMaxReceiveBufferBytes(maxMessageBytes int) int {
	if maxMessageBytes < 0 {
		maxMessageBytes = 0
	}
	buf := DefaultSCTPMaxReceiveBufferBytes
	if twice := maxMessageBytes * 2; twice > buf {
		buf = twice
	}
	if buf < minSCTPReceiveBufferBytes {
		buf = minSCTPReceiveBufferBytes
	}
	return buf
}
