package webrtcpeer

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// DataChannelLabelDraw is the label of the single channel carrying drawing
// messages.
const DataChannelLabelDraw = "draw"

func drawDataChannelInit() *webrtc.DataChannelInit {
	ordered := true
	return &webrtc.DataChannelInit{Ordered: &ordered}
}

// validateDrawDataChannel requires an ordered, fully reliable channel: a lost
// or reordered segment would join the wrong points of a stroke.
func validateDrawDataChannel(dc *webrtc.DataChannel) error {
	if dc.Label() != DataChannelLabelDraw {
		return fmt.Errorf("expected label=%q (got %q)", DataChannelLabelDraw, dc.Label())
	}
	if !dc.Ordered() {
		return fmt.Errorf("draw datachannel must be ordered (ordered=false)")
	}
	if dc.MaxPacketLifeTime() != nil {
		return fmt.Errorf("draw datachannel must be fully reliable (maxPacketLifeTime must be unset)")
	}
	if dc.MaxRetransmits() != nil {
		return fmt.Errorf("draw datachannel must be fully reliable (maxRetransmits must be unset)")
	}
	return nil
}
