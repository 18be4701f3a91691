package draw

import (
	"log/slog"
	"sync"
)

// Pen identifies whose input a stroke came from. Each pen has its own style
// and open stroke so both peers can draw at the same time.
type Pen int

const (
	PenLocal Pen = iota
	PenRemote
)

func (p Pen) String() string {
	if p == PenRemote {
		return "remote"
	}
	return "local"
}

// Renderer paints board changes, e.g. onto a canvas.
type Renderer interface {
	StyleChanged(pen Pen, s Style)
	DrawSegment(pen Pen, from, to Point, s Style)
	ClearBoard()
}

type Stroke struct {
	Pen    Pen
	Style  Style
	Points []Point
}

type penState struct {
	style Style
	// open is the index of the stroke being extended, or -1.
	open int
}

// Board is the render state shared by both pens.
type Board struct {
	mu       sync.Mutex
	renderer Renderer
	pens     [2]penState
	strokes  []Stroke
}

func NewBoard(r Renderer) *Board {
	b := &Board{renderer: r}
	for i := range b.pens {
		b.pens[i] = penState{style: DefaultStyle(), open: -1}
	}
	return b
}

// DefaultStyle matches a fresh canvas context: black, 5px.
func DefaultStyle() Style {
	return Style{Color: "#000000", Size: 5}
}

// Apply renders one validated message drawn with pen. It reports whether the
// message changed anything; a segment without an open stroke does not.
func (b *Board) Apply(pen Pen, m Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ps := &b.pens[pen]
	switch m.Kind() {
	case KindClear:
		b.strokes = nil
		for i := range b.pens {
			b.pens[i].open = -1
		}
		if b.renderer != nil {
			b.renderer.ClearBoard()
		}
		return true
	case KindStyle:
		b.setStyleLocked(pen, *m.Style)
		return true
	case KindStrokeStart:
		if m.Style != nil {
			b.setStyleLocked(pen, *m.Style)
		}
		b.strokes = append(b.strokes, Stroke{Pen: pen, Style: ps.style, Points: []Point{*m.Down}})
		ps.open = len(b.strokes) - 1
		return true
	case KindStrokeSegment:
		if ps.open < 0 {
			return false
		}
		stroke := &b.strokes[ps.open]
		from := stroke.Points[len(stroke.Points)-1]
		stroke.Points = append(stroke.Points, *m.Draw)
		if b.renderer != nil {
			b.renderer.DrawSegment(pen, from, *m.Draw, stroke.Style)
		}
		return true
	default:
		return false
	}
}

func (b *Board) setStyleLocked(pen Pen, s Style) {
	b.pens[pen].style = s
	if b.renderer != nil {
		b.renderer.StyleChanged(pen, s)
	}
}

// EndStroke closes pen's open stroke (pointer-up). Remote strokes are only
// closed by the next down or clear since the wire has no pointer-up.
func (b *Board) EndStroke(pen Pen) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pens[pen].open = -1
}

// Strokes returns a copy of every stroke since the last clear.
func (b *Board) Strokes() []Stroke {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Stroke, len(b.strokes))
	for i, s := range b.strokes {
		s.Points = append([]Point(nil), s.Points...)
		out[i] = s
	}
	return out
}

func (b *Board) Style(pen Pen) Style {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pens[pen].style
}

// LogRenderer renders by logging, for headless peers.
type LogRenderer struct {
	Log *slog.Logger
}

func (r LogRenderer) StyleChanged(pen Pen, s Style) {
	r.Log.Info("style changed", "pen", pen.String(), "color", s.Color, "size", float64(s.Size))
}

func (r LogRenderer) DrawSegment(pen Pen, from, to Point, s Style) {
	r.Log.Debug("draw segment", "pen", pen.String(), "from_x", from.X, "from_y", from.Y, "to_x", to.X, "to_y", to.Y, "color", s.Color)
}

func (r LogRenderer) ClearBoard() {
	r.Log.Info("board cleared")
}
