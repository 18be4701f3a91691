package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yashikakaushik06/whiteboard-app/internal/metrics"
)

func newTestHub(t *testing.T, cfg Config) (*Hub, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	return NewHub(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), m), m
}

// pending returns the frames queued for s without consuming them.
func pending(s *Session) []string {
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()
	out := make([]string, 0, len(s.queue.frames))
	for _, f := range s.queue.frames {
		out = append(out, string(f))
	}
	return out
}

func connect(t *testing.T, h *Hub) *Session {
	t.Helper()
	s, err := h.Connect()
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return s
}

func TestHub_AssignsUUIDSessionIDsAndRemovesOnClose(t *testing.T) {
	h, m := newTestHub(t, Config{})

	s := connect(t, h)
	if got := h.ActiveSessions(); got != 1 {
		t.Fatalf("ActiveSessions=%d, want 1", got)
	}
	parsed, err := uuid.Parse(s.ID())
	if err != nil {
		t.Fatalf("uuid.Parse(%q): %v", s.ID(), err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("uuid version=%d, want 4", parsed.Version())
	}

	s.Close("client namespace disconnect")
	if got := h.ActiveSessions(); got != 0 {
		t.Fatalf("ActiveSessions=%d, want 0 after Close", got)
	}
	if !s.Closed() {
		t.Fatalf("expected session to be closed")
	}
	if got := m.Get(metrics.SignalingSessionsClosed); got != 1 {
		t.Fatalf("%s=%d, want 1", metrics.SignalingSessionsClosed, got)
	}

	// Second close is a no-op.
	s.Close("again")
	if got := m.Get(metrics.SignalingSessionsClosed); got != 1 {
		t.Fatalf("%s=%d after double close, want 1", metrics.SignalingSessionsClosed, got)
	}
}

func TestHub_EnforcesMaxSessions(t *testing.T) {
	h, m := newTestHub(t, Config{MaxSessions: 2})

	s1 := connect(t, h)
	connect(t, h)

	if _, err := h.Connect(); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("Connect err=%v, want %v", err, ErrTooManySessions)
	}
	if got := m.Get(metrics.DropReasonTooManySessions); got != 1 {
		t.Fatalf("expected %s metric increment", metrics.DropReasonTooManySessions)
	}

	s1.Close("transport close")
	connect(t, h)
	if got := h.ActiveSessions(); got != 2 {
		t.Fatalf("ActiveSessions=%d, want 2", got)
	}
}

func TestHub_PropagateExcludesSender(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	a := connect(t, h)
	b := connect(t, h)

	n, err := h.Propagate(a, []byte("offer"))
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if n != 1 {
		t.Fatalf("delivered=%d, want 1", n)
	}
	if got := pending(a); len(got) != 0 {
		t.Fatalf("sender received its own frame: %v", got)
	}
	if got := pending(b); len(got) != 1 || got[0] != "offer" {
		t.Fatalf("receiver frames=%v, want [offer]", got)
	}
}

func TestHub_SingleSessionDeliversNothing(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	a := connect(t, h)

	n, err := h.Propagate(a, []byte("offer"))
	if err != nil || n != 0 {
		t.Fatalf("Propagate=(%d, %v), want (0, nil)", n, err)
	}
}

func TestHub_DeregisteredSenderDeliversNothing(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	a := connect(t, h)
	b := connect(t, h)

	a.Close("transport error")
	n, err := h.Propagate(a, []byte("late"))
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Propagate err=%v, want %v", err, ErrSessionClosed)
	}
	if n != 0 {
		t.Fatalf("delivered=%d, want 0", n)
	}
	if got := pending(b); len(got) != 0 {
		t.Fatalf("frames=%v, want none", got)
	}
}

func TestHub_ThreeSessionCrossTalk(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	a := connect(t, h)
	b := connect(t, h)
	c := connect(t, h)

	for _, s := range []*Session{a, b, c} {
		if _, err := h.Propagate(s, []byte("from-"+s.ID())); err != nil {
			t.Fatalf("Propagate: %v", err)
		}
	}

	for _, s := range []*Session{a, b, c} {
		got := pending(s)
		if len(got) != 2 {
			t.Fatalf("session %s frames=%v, want 2", s.ID(), got)
		}
		for _, f := range got {
			if f == "from-"+s.ID() {
				t.Fatalf("session %s received its own frame", s.ID())
			}
		}
	}
}

func TestHub_FIFOPerSender(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	a := connect(t, h)
	b := connect(t, h)

	for i := 0; i < 50; i++ {
		if _, err := h.Propagate(a, []byte(fmt.Sprintf("%02d", i))); err != nil {
			t.Fatalf("Propagate: %v", err)
		}
	}
	for i := 0; i < 50; i++ {
		frame, ok := b.Next()
		if !ok {
			t.Fatalf("Next closed early at %d", i)
		}
		if want := fmt.Sprintf("%02d", i); string(frame) != want {
			t.Fatalf("frame %d=%q, want %q", i, frame, want)
		}
	}
}

func TestHub_BroadcastSetTracksChurn(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	a := connect(t, h)
	b := connect(t, h)

	if _, err := h.Propagate(a, []byte("1")); err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	b.Close("leave")
	c := connect(t, h)
	if _, err := h.Propagate(a, []byte("2")); err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	if got := pending(c); len(got) != 1 || got[0] != "2" {
		t.Fatalf("late joiner frames=%v, want [2]", got)
	}
	if _, ok := b.Next(); ok {
		t.Fatalf("closed session still yields frames")
	}
	if ids := h.SessionIDs(); len(ids) != 2 {
		t.Fatalf("SessionIDs=%v, want 2 ids", ids)
	}
}

func TestHub_ConcurrentChurnNeverDeliversToSender(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	stable := connect(t, h)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s, err := h.Connect()
				if err != nil {
					t.Errorf("Connect: %v", err)
					return
				}
				if _, err := h.Propagate(s, []byte(s.ID())); err != nil {
					t.Errorf("Propagate: %v", err)
				}
				for _, f := range pending(s) {
					if f == s.ID() {
						t.Errorf("session %s received its own frame", s.ID())
					}
				}
				s.Close("churn")
			}
		}()
	}
	wg.Wait()

	if got := h.ActiveSessions(); got != 1 {
		t.Fatalf("ActiveSessions=%d, want 1", got)
	}
	if got := len(pending(stable)); got != 400 {
		t.Fatalf("stable session frames=%d, want 400", got)
	}
}

func TestHub_SlowReceiverDropsWithoutBlocking(t *testing.T) {
	h, m := newTestHub(t, Config{SendQueueBytes: 8})
	a := connect(t, h)
	b := connect(t, h)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 4; i++ {
			_, _ = h.Propagate(a, []byte("abcd"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Propagate blocked on a full queue")
	}

	if got := len(pending(b)); got != 2 {
		t.Fatalf("queued=%d, want 2", got)
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("Dropped=%d, want 2", got)
	}
	if got := m.Get(metrics.DropReasonSendQueueFull); got != 2 {
		t.Fatalf("%s=%d, want 2", metrics.DropReasonSendQueueFull, got)
	}
}

func TestHub_PeerLeftAnnouncement(t *testing.T) {
	h, m := newTestHub(t, Config{PeerLeftFrame: func(id string) []byte { return []byte("left:" + id) }})
	a := connect(t, h)
	b := connect(t, h)

	a.Close("transport close")
	if got := pending(b); len(got) != 1 || got[0] != "left:"+a.ID() {
		t.Fatalf("frames=%v, want [left:%s]", got, a.ID())
	}
	if got := m.Get(metrics.SignalingPeerLeftSent); got != 1 {
		t.Fatalf("%s=%d, want 1", metrics.SignalingPeerLeftSent, got)
	}
}

func TestHub_NoPeerLeftByDefault(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	a := connect(t, h)
	b := connect(t, h)

	a.Close("transport close")
	if got := pending(b); len(got) != 0 {
		t.Fatalf("frames=%v, want none", got)
	}
}

func TestHub_CloseAll(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	a := connect(t, h)
	b := connect(t, h)

	h.CloseAll("shutdown")
	if h.ActiveSessions() != 0 || !a.Closed() || !b.Closed() {
		t.Fatalf("expected all sessions closed")
	}
}

func TestSession_NextUnblocksOnClose(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	s := connect(t, h)

	result := make(chan bool, 1)
	go func() {
		_, ok := s.Next()
		result <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close("bye")

	select {
	case ok := <-result:
		if ok {
			t.Fatalf("Next returned ok after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Next did not unblock on close")
	}
}
