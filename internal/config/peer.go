package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envVarRelayURL   = "WHITEBOARD_RELAY_URL"
	envVarPenColor   = "WHITEBOARD_PEN_COLOR"
	envVarPenSize    = "WHITEBOARD_PEN_SIZE"
	envVarPeerOrigin = "WHITEBOARD_PEER_ORIGIN"

	DefaultRelayURL = "ws://127.0.0.1:8080/ws"
	DefaultPenColor = "#000000"
	DefaultPenSize  = 5
)

// PeerConfig configures the headless whiteboard peer.
type PeerConfig struct {
	// RelayURL is the ws:// or wss:// signaling endpoint.
	RelayURL string
	// Origin is sent as the Origin header when dialing the relay. Empty
	// means none.
	Origin string

	// Call makes this peer the caller: it opens the draw channel and sends
	// the offer as soon as it is connected to the relay.
	Call bool

	PenColor string
	PenSize  float64

	// PlayIVF streams a VP8 IVF file as the local video track.
	PlayIVF string
	// RecordIVF writes the remote video track to an IVF file.
	RecordIVF string

	ICEServers []webrtc.ICEServer
	Network    Network

	LogFormat LogFormat
	LogLevel  slog.Level
}

func LoadPeer(args []string) (PeerConfig, error) {
	return loadPeer(os.LookupEnv, args)
}

func loadPeer(lookup func(string) (string, bool), args []string) (PeerConfig, error) {
	modeStr, logFormatStr, logLevelStr := loggingDefaults(lookup)

	relayURL := envOrDefault(lookup, envVarRelayURL, DefaultRelayURL)
	peerOrigin := envOrDefault(lookup, envVarPeerOrigin, "")
	penColor := envOrDefault(lookup, envVarPenColor, DefaultPenColor)
	penSize := float64(DefaultPenSize)
	if raw, ok := lookup(envVarPenSize); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return PeerConfig{}, fmt.Errorf("invalid %s %q: %w", envVarPenSize, raw, err)
		}
		penSize = v
	}
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, DefaultStunURLs)

	fs := flag.NewFlagSet("whiteboard-peer", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	finishNetwork, err := loadNetwork(lookup, fs)
	if err != nil {
		return PeerConfig{}, err
	}

	var (
		call      bool
		playIVF   string
		recordIVF string
	)
	fs.StringVar(&relayURL, "relay", relayURL, "Signaling relay WebSocket URL (env "+envVarRelayURL+")")
	fs.StringVar(&peerOrigin, "origin", peerOrigin, "Origin header sent to the relay (env "+envVarPeerOrigin+")")
	fs.BoolVar(&call, "call", false, "Start the call: open the draw channel and send the offer")
	fs.StringVar(&penColor, "color", penColor, "Pen color (env "+envVarPenColor+")")
	fs.Float64Var(&penSize, "size", penSize, "Pen size (env "+envVarPenSize+")")
	fs.StringVar(&playIVF, "play-ivf", "", "Send this VP8 IVF file as the local video track")
	fs.StringVar(&recordIVF, "record-ivf", "", "Record the remote video track to this IVF file")
	fs.StringVar(&modeStr, "mode", modeStr, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatStr, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelStr, "Log level: debug, info, warn, error")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")

	if err := fs.Parse(args); err != nil {
		return PeerConfig{}, err
	}

	_, logFormat, level, err := finishLogging(lookup, fs, modeStr, logFormatStr, logLevelStr)
	if err != nil {
		return PeerConfig{}, err
	}

	u, err := url.Parse(relayURL)
	if err != nil {
		return PeerConfig{}, fmt.Errorf("%s/--relay: %w", envVarRelayURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return PeerConfig{}, fmt.Errorf("%s/--relay %q: scheme must be ws or wss", envVarRelayURL, relayURL)
	}
	if strings.TrimSpace(penColor) == "" {
		return PeerConfig{}, errors.New("pen color must not be empty")
	}
	if penSize <= 0 {
		return PeerConfig{}, fmt.Errorf("%s/--size must be > 0", envVarPenSize)
	}
	if playIVF != "" && playIVF == recordIVF {
		return PeerConfig{}, errors.New("--play-ivf and --record-ivf must name different files")
	}

	network, err := finishNetwork()
	if err != nil {
		return PeerConfig{}, err
	}
	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs)
	if err != nil {
		return PeerConfig{}, err
	}

	return PeerConfig{
		RelayURL:   relayURL,
		Origin:     peerOrigin,
		Call:       call,
		PenColor:   penColor,
		PenSize:    penSize,
		PlayIVF:    playIVF,
		RecordIVF:  recordIVF,
		ICEServers: iceServers,
		Network:    network,
		LogFormat:  logFormat,
		LogLevel:   level,
	}, nil
}
