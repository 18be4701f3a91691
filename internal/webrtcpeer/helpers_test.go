package webrtcpeer_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/vnet"
	"github.com/pion/webrtc/v4"

	"github.com/yashikakaushik06/whiteboard-app/internal/signaling"
	"github.com/yashikakaushik06/whiteboard-app/internal/webrtcpeer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newVNetAPIs returns two APIs whose PeerConnections can only reach each other
// over an in-memory router.
func newVNetAPIs(t *testing.T) (*webrtc.API, *webrtc.API) {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Stop() })

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.1"}})
	if err != nil {
		t.Fatalf("new net A: %v", err)
	}
	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.2"}})
	if err != nil {
		t.Fatalf("new net B: %v", err)
	}
	if err := router.AddNet(netA); err != nil {
		t.Fatalf("add net A: %v", err)
	}
	if err := router.AddNet(netB); err != nil {
		t.Fatalf("add net B: %v", err)
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}

	factory := webrtcpeer.NewLoggerFactory(discardLogger())
	apiA, err := webrtcpeer.NewAPI(webrtcpeer.APIOptions{Net: netA, LoggerFactory: factory})
	if err != nil {
		t.Fatalf("new api A: %v", err)
	}
	apiB, err := webrtcpeer.NewAPI(webrtcpeer.APIOptions{Net: netB, LoggerFactory: factory})
	if err != nil {
		t.Fatalf("new api B: %v", err)
	}
	return apiA, apiB
}

// recordingSignaler captures sent envelopes and optionally forwards them.
type recordingSignaler struct {
	mu      sync.Mutex
	sent    []signaling.Envelope
	forward func(signaling.Envelope)
	notify  chan struct{}
}

func newRecordingSignaler() *recordingSignaler {
	return &recordingSignaler{notify: make(chan struct{}, 1)}
}

func (s *recordingSignaler) Send(env signaling.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, env)
	forward := s.forward
	s.mu.Unlock()

	if forward != nil {
		forward(env)
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *recordingSignaler) Sent() []signaling.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signaling.Envelope(nil), s.sent...)
}

// waitFor polls the recorded envelopes until cond holds.
func (s *recordingSignaler) waitFor(t *testing.T, what string, cond func([]signaling.Envelope) bool) []signaling.Envelope {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if sent := s.Sent(); cond(sent) {
			return sent
		}
		select {
		case <-s.notify:
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %s (sent=%d)", what, len(s.Sent()))
		}
	}
}

func waitOpen(t *testing.T, dc *webrtc.DataChannel, who string) {
	t.Helper()
	opened := make(chan struct{})
	var once sync.Once
	dc.OnOpen(func() { once.Do(func() { close(opened) }) })
	select {
	case <-opened:
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s datachannel to open", who)
	}
}
