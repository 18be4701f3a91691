package draw

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/yashikakaushik06/whiteboard-app/internal/metrics"
)

// Channel is the send side of the draw data channel. *webrtc.DataChannel
// implements it.
type Channel interface {
	ReadyState() webrtc.DataChannelState
	SendText(s string) error
}

type SyncConfig struct {
	Board   *Board
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Pen is the initial local pen. Zero values fall back to DefaultStyle.
	Pen Style
	// MaxMessageBytes drops larger inbound messages unparsed. Zero means no
	// limit.
	MaxMessageBytes int
}

// Sync turns local pointer input into board updates and draw messages, and
// applies messages received from the other peer. Local input is always
// rendered; it is only transmitted while the channel is open and is never
// queued for later.
type Sync struct {
	board   *Board
	log     *slog.Logger
	metrics *metrics.Metrics
	maxMsg  int

	opened     chan struct{}
	openedOnce sync.Once

	mu      sync.Mutex
	ch      Channel
	pen     Style
	eraser  bool
	drawing bool
}

func NewSync(cfg SyncConfig) *Sync {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	board := cfg.Board
	if board == nil {
		board = NewBoard(nil)
	}
	pen := DefaultStyle()
	if cfg.Pen.Color != "" {
		pen.Color = cfg.Pen.Color
	}
	if cfg.Pen.Size > 0 {
		pen.Size = cfg.Pen.Size
	}
	return &Sync{
		board:   board,
		log:     log,
		metrics: cfg.Metrics,
		maxMsg:  cfg.MaxMessageBytes,
		opened:  make(chan struct{}),
		pen:     pen,
	}
}

// Opened is closed once an attached channel has opened.
func (s *Sync) Opened() <-chan struct{} { return s.opened }

func (s *Sync) Board() *Board { return s.board }

// Attach starts using dc for both directions.
func (s *Sync) Attach(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		s.log.Info("draw datachannel open", "label", dc.Label())
		s.openedOnce.Do(func() { close(s.opened) })
	})
	dc.OnClose(func() {
		s.log.Info("draw datachannel closed", "label", dc.Label())
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			s.metrics.Inc(metrics.DrawMessagesInvalid)
			s.log.Debug("ignoring binary draw message", "bytes", len(msg.Data))
			return
		}
		_ = s.HandleMessage(msg.Data)
	})
	s.SetChannel(dc)
}

func (s *Sync) SetChannel(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = ch
}

func (s *Sync) SetColor(color string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pen.Color = color
}

func (s *Sync) SetSize(size float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pen.Size = Size(size)
}

// SetEraser switches between the eraser and the colored pen. The pen color is
// kept for when erasing stops.
func (s *Sync) SetEraser(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eraser = on
}

func (s *Sync) currentStyleLocked() Style {
	st := s.pen
	if s.eraser {
		st.Color = EraserColor
	}
	return st
}

func (s *Sync) PointerDown(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawing = true
	s.emitLocked(StrokeStartMessage(s.currentStyleLocked(), p))
}

// PointerMove extends the local stroke. Moves while the pointer is up are
// ignored.
func (s *Sync) PointerMove(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawing {
		return
	}
	s.emitLocked(SegmentMessage(p))
}

func (s *Sync) PointerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawing = false
	s.board.EndStroke(PenLocal)
}

func (s *Sync) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(ClearMessage())
}

// emitLocked renders m locally, then transmits it if the channel is open.
func (s *Sync) emitLocked(m Message) {
	if err := m.Validate(); err != nil {
		s.log.Warn("dropping invalid local draw event", "err", err)
		return
	}
	s.board.Apply(PenLocal, m)

	if s.ch == nil || s.ch.ReadyState() != webrtc.DataChannelStateOpen {
		s.metrics.Inc(metrics.DrawMessagesDropped)
		return
	}
	data, err := m.Encode()
	if err != nil {
		s.log.Warn("failed to encode draw message", "err", err)
		return
	}
	if err := s.ch.SendText(string(data)); err != nil {
		s.metrics.Inc(metrics.DrawMessagesDropped)
		s.log.Warn("failed to send draw message", "kind", m.Kind().String(), "err", err)
		return
	}
	s.metrics.Inc(metrics.DrawMessagesSent)
}

// HandleMessage applies a message from the other peer. Invalid messages are
// dropped. Nothing is ever sent in response.
func (s *Sync) HandleMessage(data []byte) error {
	if s.maxMsg > 0 && len(data) > s.maxMsg {
		s.metrics.Inc(metrics.DrawMessagesInvalid)
		s.log.Debug("ignoring oversized draw message", "bytes", len(data), "max", s.maxMsg)
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidMessage, len(data), s.maxMsg)
	}
	m, err := ParseMessage(data)
	if err != nil {
		s.metrics.Inc(metrics.DrawMessagesInvalid)
		s.log.Debug("ignoring invalid draw message", "err", err)
		return err
	}
	s.metrics.Inc(metrics.DrawMessagesReceived)
	s.board.Apply(PenRemote, m)
	return nil
}
