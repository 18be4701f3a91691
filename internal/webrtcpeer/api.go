package webrtcpeer

import (
	"fmt"
	"net"

	"github.com/pion/logging"
	"github.com/pion/transport/v4"
	"github.com/pion/webrtc/v4"

	"github.com/yashikakaushik06/whiteboard-app/internal/config"
)

type APIOptions struct {
	Network config.Network
	// LoggerFactory routes pion's internal logs. Nil keeps pion's default.
	LoggerFactory logging.LoggerFactory
	// Net replaces the OS network stack, e.g. with a vnet in tests.
	Net transport.Net
}

// NewAPI builds a pion API with the default codecs registered so peers can
// exchange video alongside the draw channel.
func NewAPI(opts APIOptions) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	if err := ApplyNetworkSettings(&se, opts.Network); err != nil {
		return nil, err
	}
	if opts.LoggerFactory != nil {
		se.LoggerFactory = opts.LoggerFactory
	}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}

func ApplyNetworkSettings(se *webrtc.SettingEngine, n config.Network) error {
	if n.UDPPortRange != nil {
		if err := se.SetEphemeralUDPPortRange(n.UDPPortRange.Min, n.UDPPortRange.Max); err != nil {
			return fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}

	// SettingEngine has no "bind to this address" knob; an IP filter restricts
	// both gathering and socket binding.
	if !config.IsUnspecifiedIP(n.UDPListenIP) {
		listenIP := n.UDPListenIP
		se.SetIPFilter(func(ip net.IP) bool {
			return ip.Equal(listenIP)
		})
	}

	if n.SCTPMaxReceiveBufferBytes > 0 {
		se.SetSCTPMaxReceiveBufferSize(uint32(n.SCTPMaxReceiveBufferBytes))
	}
	return nil
}
