package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/yashikakaushik06/whiteboard-app/internal/origin"
)

const (
	// envVarPort is the single knob every deployment is expected to touch
	// (PaaS platforms inject it).
	envVarPort            = "PORT"
	envVarListenHost      = "WHITEBOARD_LISTEN_HOST"
	envVarStaticDir       = "WHITEBOARD_STATIC_DIR"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "WHITEBOARD_LOG_FORMAT"
	envVarLogLevel        = "WHITEBOARD_LOG_LEVEL"
	envVarShutdownTimeout = "WHITEBOARD_SHUTDOWN_TIMEOUT"
	envVarMode            = "WHITEBOARD_MODE"

	// Hub knobs.
	envVarMaxSessions      = "MAX_SESSIONS"
	envVarAnnouncePeerLeft = "ANNOUNCE_PEER_LEFT"

	// Signaling WebSocket hardening.
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarSignalingSendQueueBytes       = "SIGNALING_SEND_QUEUE_BYTES"

	envVarWebRTCUDPPortMin    = "WEBRTC_UDP_PORT_MIN"
	envVarWebRTCUDPPortMax    = "WEBRTC_UDP_PORT_MAX"
	envVarWebRTCUDPListenIP   = "WEBRTC_UDP_LISTEN_IP"
	envVarDrawMessageMaxBytes = "DRAW_MESSAGE_MAX_BYTES"

	DefaultPort                     = 8080
	DefaultListenHost               = "0.0.0.0"
	DefaultStaticDir                = "public"
	DefaultShutdown                 = 15 * time.Second
	DefaultMode                Mode = ModeDev
	DefaultAllowedOrigins           = "*"
	DefaultWebRTCUDPListenIP        = "0.0.0.0"

	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultSignalingSendQueueBytes       = 1 << 20 // 1MiB
)

const (
	flagWebRTCUDPPortMin  = "webrtc-udp-port-min"
	flagWebRTCUDPPortMax  = "webrtc-udp-port-max"
	flagWebRTCUDPListenIP = "webrtc-udp-listen-ip"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type UDPPortRange struct {
	Min uint16
	Max uint16
}

// Network holds the pion SettingEngine restrictions shared by every process
// that constructs PeerConnections.
type Network struct {
	// UDPPortRange restricts the UDP ports used for ICE. When nil, pion uses
	// its defaults (OS ephemeral port selection).
	UDPPortRange *UDPPortRange

	// UDPListenIP restricts which local interface address ICE binds UDP sockets
	// to. 0.0.0.0 means "use library default".
	UDPListenIP net.IP

	// DrawMessageMaxBytes is the largest inbound drawing message accepted.
	DrawMessageMaxBytes int
	// SCTPMaxReceiveBufferBytes is handed to the SettingEngine.
	SCTPMaxReceiveBufferBytes int
}

// Config is the relay server configuration.
type Config struct {
	ListenAddr      string
	StaticDir       string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	// MaxSessions caps concurrently connected signaling sessions per hub.
	// 0 means unlimited: with more than two sessions every peer receives
	// every other peer's signaling traffic.
	MaxSessions int
	// AnnouncePeerLeft makes the hub tell remaining sessions when a session
	// disconnects. Off by default; peers otherwise only learn of departure
	// from their PeerConnection state.
	AnnouncePeerLeft bool

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration
	// SignalingSendQueueBytes bounds queued outbound bytes per session before
	// frames are dropped.
	SignalingSendQueueBytes int

	// ICEServers is handed to browsers via GET /webrtc/ice.
	ICEServers []webrtc.ICEServer

	iceConfigErr error
}

func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	modeDefault, logFormatDefault, logLevelDefault := loggingDefaults(lookup)

	port, err := envIntOrDefault(lookup, envVarPort, DefaultPort)
	if err != nil {
		return Config{}, err
	}
	listenHost := envOrDefault(lookup, envVarListenHost, DefaultListenHost)
	staticDir := envOrDefault(lookup, envVarStaticDir, DefaultStaticDir)
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, DefaultAllowedOrigins)
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, DefaultStunURLs)

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	maxSessions, err := envIntOrDefault(lookup, envVarMaxSessions, 0)
	if err != nil {
		return Config{}, err
	}
	announcePeerLeft, err := envBoolOrDefault(lookup, envVarAnnouncePeerLeft, false)
	if err != nil {
		return Config{}, err
	}

	maxSignalingMessageBytes := DefaultMaxSignalingMessageBytes
	if raw, ok := lookup(envVarMaxSignalingMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxSignalingMessageBytes, raw, err)
		}
		maxSignalingMessageBytes = n
	}
	maxSignalingMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	signalingWSIdleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	signalingWSPingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	signalingSendQueueBytes, err := envIntOrDefault(lookup, envVarSignalingSendQueueBytes, DefaultSignalingSendQueueBytes)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("whiteboard-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.IntVar(&port, "port", port, "HTTP listen port (env "+envVarPort+")")
	fs.StringVar(&listenHost, "listen-host", listenHost, "HTTP listen host (env "+envVarListenHost+")")
	fs.StringVar(&staticDir, "static-dir", staticDir, "Directory of static assets served at / (env "+envVarStaticDir+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins, or * (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")

	fs.IntVar(&maxSessions, "max-sessions", maxSessions, "Maximum concurrent signaling sessions (0 = unlimited; env "+envVarMaxSessions+")")
	fs.BoolVar(&announcePeerLeft, "announce-peer-left", announcePeerLeft, "Send a peerleft event to remaining sessions on disconnect (env "+envVarAnnouncePeerLeft+")")
	fs.Int64Var(&maxSignalingMessageBytes, "max-signaling-message-bytes", maxSignalingMessageBytes, "Max inbound signaling message size (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&maxSignalingMessagesPerSecond, "max-signaling-messages-per-second", maxSignalingMessagesPerSecond, "Max inbound signaling messages per second per session (env "+envVarMaxSignalingMessagesPerSecond+")")
	fs.DurationVar(&signalingWSIdleTimeout, "signaling-ws-idle-timeout", signalingWSIdleTimeout, "Close signaling sockets idle for this long (env "+envVarSignalingWSIdleTimeout+")")
	fs.DurationVar(&signalingWSPingInterval, "signaling-ws-ping-interval", signalingWSPingInterval, "Ping interval for signaling sockets (env "+envVarSignalingWSPingInterval+")")
	fs.IntVar(&signalingSendQueueBytes, "signaling-send-queue-bytes", signalingSendQueueBytes, "Max queued outbound signaling bytes per session (env "+envVarSignalingSendQueueBytes+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, logFormat, level, err := finishLogging(lookup, fs, modeStr, logFormatStr, logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("%s/--port %d out of range (1-65535)", envVarPort, port)
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if maxSessions < 0 {
		return Config{}, fmt.Errorf("%s/--max-sessions must be >= 0", envVarMaxSessions)
	}
	if maxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > 0", envVarMaxSignalingMessageBytes)
	}
	if maxSignalingMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-messages-per-second must be > 0", envVarMaxSignalingMessagesPerSecond)
	}
	if signalingWSIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-idle-timeout must be > 0", envVarSignalingWSIdleTimeout)
	}
	if signalingWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be > 0", envVarSignalingWSPingInterval)
	}
	if signalingWSPingInterval >= signalingWSIdleTimeout {
		return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be < %s/--signaling-ws-idle-timeout", envVarSignalingWSPingInterval, envVarSignalingWSIdleTimeout)
	}
	if int64(signalingSendQueueBytes) < maxSignalingMessageBytes {
		return Config{}, fmt.Errorf("%s/--signaling-send-queue-bytes must be >= %s (%d)", envVarSignalingSendQueueBytes, envVarMaxSignalingMessageBytes, maxSignalingMessageBytes)
	}

	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s/%s: %w", envVarAllowedOrigins, "--allowed-origins", err)
	}

	cfg := Config{
		ListenAddr:      net.JoinHostPort(listenHost, strconv.Itoa(port)),
		StaticDir:       staticDir,
		AllowedOrigins:  allowedOrigins,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		MaxSessions:      maxSessions,
		AnnouncePeerLeft: announcePeerLeft,

		MaxSignalingMessageBytes:      maxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: maxSignalingMessagesPerSecond,
		SignalingWSIdleTimeout:        signalingWSIdleTimeout,
		SignalingWSPingInterval:       signalingWSPingInterval,
		SignalingSendQueueBytes:       signalingSendQueueBytes,
	}

	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs)
	if err != nil {
		// Keep serving: browsers can still negotiate host candidates. readyz
		// reports the problem.
		cfg.iceConfigErr = err
	} else {
		cfg.ICEServers = iceServers
	}

	return cfg, nil
}

// loggingDefaults resolves the mode and the mode-dependent log defaults so
// flags can still override them.
func loggingDefaults(lookup func(string) (string, bool)) (mode, format, level string) {
	mode = string(DefaultMode)
	if env, _ := lookup(envVarMode); env != "" {
		mode = env
	}
	format = envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(mode))
	level = envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(mode))
	return mode, format, level
}

// loadNetwork parses the WebRTC UDP restrictions. Values come from env and
// are registered as flags on fs; the returned func finalizes after Parse.
func loadNetwork(lookup func(string) (string, bool), fs *flag.FlagSet) (func() (Network, error), error) {
	var portMin, portMax uint
	if raw, ok := lookup(envVarWebRTCUDPPortMin); ok && strings.TrimSpace(raw) != "" {
		p, err := parsePortString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", envVarWebRTCUDPPortMin, raw, err)
		}
		portMin = uint(p)
	}
	if raw, ok := lookup(envVarWebRTCUDPPortMax); ok && strings.TrimSpace(raw) != "" {
		p, err := parsePortString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", envVarWebRTCUDPPortMax, raw, err)
		}
		portMax = uint(p)
	}
	listenIPStr := envOrDefault(lookup, envVarWebRTCUDPListenIP, DefaultWebRTCUDPListenIP)
	drawMax, err := envIntOrDefault(lookup, envVarDrawMessageMaxBytes, DefaultDrawMessageMaxBytes)
	if err != nil {
		return nil, err
	}

	fs.UintVar(&portMin, flagWebRTCUDPPortMin, portMin, "Min UDP port for WebRTC ICE (0 = unset; env "+envVarWebRTCUDPPortMin+")")
	fs.UintVar(&portMax, flagWebRTCUDPPortMax, portMax, "Max UDP port for WebRTC ICE (0 = unset; env "+envVarWebRTCUDPPortMax+")")
	fs.StringVar(&listenIPStr, flagWebRTCUDPListenIP, listenIPStr, "Local listen IP for WebRTC ICE UDP sockets (env "+envVarWebRTCUDPListenIP+")")
	fs.IntVar(&drawMax, "draw-message-max-bytes", drawMax, "Max inbound drawing message size (env "+envVarDrawMessageMaxBytes+")")

	return func() (Network, error) {
		var n Network
		if (portMin == 0) != (portMax == 0) {
			return Network{}, fmt.Errorf("%s/--%s and %s/--%s must be set together (or both unset)",
				envVarWebRTCUDPPortMin, flagWebRTCUDPPortMin, envVarWebRTCUDPPortMax, flagWebRTCUDPPortMax)
		}
		if portMin != 0 {
			min, err := parsePortUint(portMin)
			if err != nil {
				return Network{}, fmt.Errorf("%s/--%s: %w", envVarWebRTCUDPPortMin, flagWebRTCUDPPortMin, err)
			}
			max, err := parsePortUint(portMax)
			if err != nil {
				return Network{}, fmt.Errorf("%s/--%s: %w", envVarWebRTCUDPPortMax, flagWebRTCUDPPortMax, err)
			}
			if min > max {
				return Network{}, fmt.Errorf("WebRTC UDP port range min (%d) must be <= max (%d)", min, max)
			}
			n.UDPPortRange = &UDPPortRange{Min: min, Max: max}
		}
		ip := net.ParseIP(strings.TrimSpace(listenIPStr))
		if ip == nil {
			return Network{}, fmt.Errorf("invalid %s/--%s %q", envVarWebRTCUDPListenIP, flagWebRTCUDPListenIP, listenIPStr)
		}
		n.UDPListenIP = ip
		if drawMax <= 0 {
			return Network{}, fmt.Errorf("%s/--draw-message-max-bytes must be > 0", envVarDrawMessageMaxBytes)
		}
		n.DrawMessageMaxBytes = drawMax
		n.SCTPMaxReceiveBufferBytes = defaultSCTPMaxReceiveBufferBytes(drawMax)
		return n, nil
	}, nil
}

// finishLogging re-derives the log format and level from the final mode
// unless either was set explicitly by env or flag.
func finishLogging(lookup func(string) (string, bool), fs *flag.FlagSet, modeStr, logFormatStr, logLevelStr string) (Mode, LogFormat, slog.Level, error) {
	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return "", "", 0, err
	}
	if env, _ := lookup(envVarLogFormat); env == "" && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if env, _ := lookup(envVarLogLevel); env == "" && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return "", "", 0, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return "", "", 0, err
	}
	return mode, logFormat, level, nil
}

func NewLogger(format LogFormat, level slog.Level) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch format {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func IsUnspecifiedIP(ip net.IP) bool {
	return ip == nil || ip.Equal(net.IPv4zero) || ip.Equal(net.IPv6zero)
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			out = append(out, entry)
			continue
		}

		normalizedOrigin, _, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalizedOrigin)
	}

	return out, nil
}

func parsePortString(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return parsePortUint(uint(v))
}

func parsePortUint(v uint) (uint16, error) {
	if v == 0 || v > 65535 {
		return 0, fmt.Errorf("port %d out of range (1-65535)", v)
	}
	return uint16(v), nil
}
