package draw

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var ErrInvalidMessage = errors.New("draw: invalid message")

// EraserColor is the pen color used while erasing; the board background is
// white.
const EraserColor = "#FFFFFF"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) valid() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Size is a pen width. Browsers send range input values as strings, so both
// 5 and "5" decode.
type Size float64

func (s *Size) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("size %q: %w", str, err)
		}
		*s = Size(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*s = Size(f)
	return nil
}

type Style struct {
	Color string `json:"color"`
	Size  Size   `json:"size"`
}

func (s Style) validate() error {
	if s.Color == "" {
		return fmt.Errorf("%w: style without color", ErrInvalidMessage)
	}
	f := float64(s.Size)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return fmt.Errorf("%w: style size %v", ErrInvalidMessage, f)
	}
	return nil
}

type Kind int

const (
	KindInvalid Kind = iota
	// KindStyle changes the pen without starting a stroke.
	KindStyle
	// KindStrokeStart starts a stroke, optionally switching style first.
	KindStrokeStart
	KindStrokeSegment
	KindClear
)

func (k Kind) String() string {
	switch k {
	case KindStyle:
		return "style"
	case KindStrokeStart:
		return "down"
	case KindStrokeSegment:
		return "draw"
	case KindClear:
		return "clear"
	default:
		return "invalid"
	}
}

// Message is one data channel message. Fields are mutually exclusive except
// that Style may accompany Down.
type Message struct {
	Style *Style `json:"style,omitempty"`
	Down  *Point `json:"down,omitempty"`
	Draw  *Point `json:"draw,omitempty"`
	Clear bool   `json:"clear,omitempty"`
}

func StyleMessage(s Style) Message { return Message{Style: &s} }

func StrokeStartMessage(s Style, p Point) Message { return Message{Style: &s, Down: &p} }

func SegmentMessage(p Point) Message { return Message{Draw: &p} }

func ClearMessage() Message { return Message{Clear: true} }

func (m Message) Kind() Kind {
	n := 0
	kind := KindInvalid
	if m.Clear {
		n++
		kind = KindClear
	}
	if m.Draw != nil {
		n++
		kind = KindStrokeSegment
	}
	if m.Down != nil {
		n++
		kind = KindStrokeStart
	}
	if m.Style != nil && m.Down == nil {
		n++
		kind = KindStyle
	}
	if n != 1 {
		return KindInvalid
	}
	return kind
}

func (m Message) Validate() error {
	switch m.Kind() {
	case KindClear:
		return nil
	case KindStyle:
		return m.Style.validate()
	case KindStrokeStart:
		if m.Style != nil {
			if err := m.Style.validate(); err != nil {
				return err
			}
		}
		if !m.Down.valid() {
			return fmt.Errorf("%w: down point %+v", ErrInvalidMessage, *m.Down)
		}
		return nil
	case KindStrokeSegment:
		if !m.Draw.valid() {
			return fmt.Errorf("%w: draw point %+v", ErrInvalidMessage, *m.Draw)
		}
		return nil
	default:
		return fmt.Errorf("%w: want one of style, down, draw, clear", ErrInvalidMessage)
	}
}

func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (m Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
