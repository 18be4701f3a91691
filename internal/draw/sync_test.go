package draw

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/yashikakaushik06/whiteboard-app/internal/metrics"
)

type fakeChannel struct {
	mu    sync.Mutex
	state webrtc.DataChannelState
	sent  []string
	err   error
}

func (c *fakeChannel) ReadyState() webrtc.DataChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) SendText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, s)
	return nil
}

func (c *fakeChannel) setState(s webrtc.DataChannelState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *fakeChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func newTestSync(t *testing.T, ch Channel) (*Sync, *recordingRenderer, *metrics.Metrics) {
	t.Helper()
	r := &recordingRenderer{}
	m := metrics.New()
	s := NewSync(SyncConfig{
		Board:   NewBoard(r),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: m,
	})
	if ch != nil {
		s.SetChannel(ch)
	}
	return s, r, m
}

func TestSync_PointerEventsWireOrder(t *testing.T) {
	ch := &fakeChannel{state: webrtc.DataChannelStateOpen}
	s, _, m := newTestSync(t, ch)
	s.SetColor("red")
	s.SetSize(5)

	s.PointerMove(Point{X: 1, Y: 1}) // pointer is up: ignored
	s.PointerDown(Point{X: 10, Y: 10})
	s.PointerMove(Point{X: 20, Y: 20})
	s.PointerUp()
	s.PointerMove(Point{X: 30, Y: 30})
	s.Clear()

	want := []string{
		`{"style":{"color":"red","size":5},"down":{"x":10,"y":10}}`,
		`{"draw":{"x":20,"y":20}}`,
		`{"clear":true}`,
	}
	got := ch.Sent()
	if len(got) != len(want) {
		t.Fatalf("sent=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent[%d]=%s, want %s", i, got[i], want[i])
		}
	}
	if n := m.Get(metrics.DrawMessagesSent); n != 3 {
		t.Fatalf("%s=%d, want 3", metrics.DrawMessagesSent, n)
	}
}

func TestSync_ClosedChannelRendersLocallyWithoutQueueing(t *testing.T) {
	ch := &fakeChannel{state: webrtc.DataChannelStateConnecting}
	s, r, m := newTestSync(t, ch)

	s.PointerDown(Point{X: 0, Y: 0})
	s.PointerMove(Point{X: 5, Y: 5})

	if strokes := s.Board().Strokes(); len(strokes) != 1 || len(strokes[0].Points) != 2 {
		t.Fatalf("local stroke not rendered: %+v", strokes)
	}
	if len(r.Events()) == 0 {
		t.Fatalf("expected local render events")
	}
	if n := m.Get(metrics.DrawMessagesDropped); n != 2 {
		t.Fatalf("%s=%d, want 2", metrics.DrawMessagesDropped, n)
	}

	ch.setState(webrtc.DataChannelStateOpen)
	s.PointerMove(Point{X: 6, Y: 6})

	got := ch.Sent()
	if len(got) != 1 || got[0] != `{"draw":{"x":6,"y":6}}` {
		t.Fatalf("events from before open must not be flushed, sent=%v", got)
	}
}

func TestSync_NoChannelYet(t *testing.T) {
	s, _, m := newTestSync(t, nil)
	s.PointerDown(Point{X: 1, Y: 1})
	s.Clear()
	if n := m.Get(metrics.DrawMessagesDropped); n != 2 {
		t.Fatalf("%s=%d, want 2", metrics.DrawMessagesDropped, n)
	}
}

func TestSync_SendErrorCountedAsDropped(t *testing.T) {
	ch := &fakeChannel{state: webrtc.DataChannelStateOpen, err: errors.New("sctp closed")}
	s, _, m := newTestSync(t, ch)
	s.Clear()
	if n := m.Get(metrics.DrawMessagesDropped); n != 1 {
		t.Fatalf("%s=%d, want 1", metrics.DrawMessagesDropped, n)
	}
}

func TestSync_EraserUsesWhite(t *testing.T) {
	ch := &fakeChannel{state: webrtc.DataChannelStateOpen}
	s, _, _ := newTestSync(t, ch)
	s.SetColor("#ff0000")
	s.SetSize(8)

	s.SetEraser(true)
	s.PointerDown(Point{X: 1, Y: 2})
	s.PointerUp()
	s.SetEraser(false)
	s.PointerDown(Point{X: 3, Y: 4})

	want := []string{
		`{"style":{"color":"#FFFFFF","size":8},"down":{"x":1,"y":2}}`,
		`{"style":{"color":"#ff0000","size":8},"down":{"x":3,"y":4}}`,
	}
	got := ch.Sent()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("sent=%v, want %v", got, want)
	}
}

func TestSync_HandleMessageNeverSends(t *testing.T) {
	ch := &fakeChannel{state: webrtc.DataChannelStateOpen}
	s, r, m := newTestSync(t, ch)

	for _, raw := range []string{
		`{"style":{"color":"red","size":"5"},"down":{"x":10,"y":10}}`,
		`{"draw":{"x":20,"y":20}}`,
		`{"draw":{"x":30,"y":30}}`,
		`{"clear":true}`,
	} {
		if err := s.HandleMessage([]byte(raw)); err != nil {
			t.Fatalf("HandleMessage(%s): %v", raw, err)
		}
	}
	if err := s.HandleMessage([]byte(`{"bogus":1}`)); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("HandleMessage(bogus) err=%v, want ErrInvalidMessage", err)
	}

	if sent := ch.Sent(); len(sent) != 0 {
		t.Fatalf("receiving triggered sends: %v", sent)
	}
	if strokes := s.Board().Strokes(); len(strokes) != 0 {
		t.Fatalf("clear should win, got %d strokes", len(strokes))
	}
	events := r.Events()
	if events[0] != "style remote red 5" || events[len(events)-1] != "clear" {
		t.Fatalf("events=%v", events)
	}
	if n := m.Get(metrics.DrawMessagesReceived); n != 4 {
		t.Fatalf("%s=%d, want 4", metrics.DrawMessagesReceived, n)
	}
	if n := m.Get(metrics.DrawMessagesInvalid); n != 1 {
		t.Fatalf("%s=%d, want 1", metrics.DrawMessagesInvalid, n)
	}
}

func TestSync_HandleMessageDropsOversized(t *testing.T) {
	r := &recordingRenderer{}
	m := metrics.New()
	s := NewSync(SyncConfig{
		Board:           NewBoard(r),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:         m,
		MaxMessageBytes: 16,
	})

	if err := s.HandleMessage([]byte(`{"clear":true}`)); err != nil {
		t.Fatalf("HandleMessage(clear): %v", err)
	}
	if err := s.HandleMessage([]byte(`{"draw":{"x":100,"y":200}}`)); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("oversized err=%v, want ErrInvalidMessage", err)
	}
	if n := m.Get(metrics.DrawMessagesInvalid); n != 1 {
		t.Fatalf("%s=%d, want 1", metrics.DrawMessagesInvalid, n)
	}
	if n := m.Get(metrics.DrawMessagesReceived); n != 1 {
		t.Fatalf("%s=%d, want 1", metrics.DrawMessagesReceived, n)
	}
}
