package config

import (
	"log/slog"
	"net"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(noEnv, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want debug", cfg.LogLevel)
	}
	if cfg.ListenAddr != "0.0.0.0:8080" {
		t.Fatalf("ListenAddr=%q, want 0.0.0.0:8080", cfg.ListenAddr)
	}
	if cfg.StaticDir != DefaultStaticDir {
		t.Fatalf("StaticDir=%q, want %q", cfg.StaticDir, DefaultStaticDir)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("AllowedOrigins=%v, want [*]", cfg.AllowedOrigins)
	}
	if cfg.MaxSessions != 0 {
		t.Fatalf("MaxSessions=%d, want 0", cfg.MaxSessions)
	}
	if cfg.AnnouncePeerLeft {
		t.Fatalf("AnnouncePeerLeft=true, want false")
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Fatalf("MaxSignalingMessageBytes=%d, want %d", cfg.MaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	}
	if cfg.SignalingWSPingInterval != DefaultSignalingWSPingInterval {
		t.Fatalf("SignalingWSPingInterval=%v, want %v", cfg.SignalingWSPingInterval, DefaultSignalingWSPingInterval)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError=%v", err)
	}
	if len(cfg.ICEServers) != 1 || len(cfg.ICEServers[0].URLs) != 2 {
		t.Fatalf("ICEServers=%#v, want the two default STUN urls", cfg.ICEServers)
	}
}

func TestPortFromEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarPort: "3000"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:3000" {
		t.Fatalf("ListenAddr=%q, want 0.0.0.0:3000", cfg.ListenAddr)
	}

	cfg, err = load(lookupMap(map[string]string{envVarPort: "3000"}), []string{"--port", "4000", "--listen-host", "127.0.0.1"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:4000" {
		t.Fatalf("ListenAddr=%q, want flag override", cfg.ListenAddr)
	}
}

func TestPortInvalid(t *testing.T) {
	for _, raw := range []string{"abc", "0", "70000"} {
		if _, err := load(lookupMap(map[string]string{envVarPort: raw}), nil); err == nil {
			t.Fatalf("expected error for PORT=%q", raw)
		}
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(noEnv, []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
}

func TestDefaultsProdWhenModeEnvSet(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarMode: "production"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want info", cfg.LogLevel)
	}
}

func TestLogFormatExplicitOverride(t *testing.T) {
	cfg, err := load(noEnv, []string{"--mode", "prod", "--log-format", "text"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestHubKnobs(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarMaxSessions:      "2",
		envVarAnnouncePeerLeft: "true",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxSessions != 2 || !cfg.AnnouncePeerLeft {
		t.Fatalf("MaxSessions=%d AnnouncePeerLeft=%v", cfg.MaxSessions, cfg.AnnouncePeerLeft)
	}

	if _, err := load(lookupMap(map[string]string{envVarMaxSessions: "-1"}), nil); err == nil {
		t.Fatalf("expected error for negative MAX_SESSIONS")
	}
	if _, err := load(lookupMap(map[string]string{envVarAnnouncePeerLeft: "maybe"}), nil); err == nil {
		t.Fatalf("expected error for invalid ANNOUNCE_PEER_LEFT")
	}
}

func TestSignalingPingMustBeBelowIdle(t *testing.T) {
	_, err := load(lookupMap(map[string]string{
		envVarSignalingWSPingInterval: "30s",
		envVarSignalingWSIdleTimeout:  "30s",
	}), nil)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	cfg, err := load(noEnv, []string{"--signaling-ws-ping-interval", "5s", "--signaling-ws-idle-timeout", "10s"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignalingWSPingInterval != 5*time.Second || cfg.SignalingWSIdleTimeout != 10*time.Second {
		t.Fatalf("ping=%v idle=%v", cfg.SignalingWSPingInterval, cfg.SignalingWSIdleTimeout)
	}
}

func TestSendQueueMustFitOneMessage(t *testing.T) {
	_, err := load(lookupMap(map[string]string{
		envVarMaxSignalingMessageBytes: "4096",
		envVarSignalingSendQueueBytes:  "1024",
	}), nil)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestInvalidICEConfigIsDeferred(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envICEServersJSON: "not json"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICEConfigError")
	}
	if cfg.ICEServers != nil {
		t.Fatalf("ICEServers=%#v, want nil", cfg.ICEServers)
	}
}

func TestParseAllowedOrigins_NormalizesAndValidates(t *testing.T) {
	got, err := parseAllowedOrigins("HTTPS://Example.COM:443, http://localhost:5173/")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2 (%v)", len(got), got)
	}
	if got[0] != "https://example.com" {
		t.Fatalf("got[0]=%q, want %q", got[0], "https://example.com")
	}
	if got[1] != "http://localhost:5173" {
		t.Fatalf("got[1]=%q, want %q", got[1], "http://localhost:5173")
	}
}

func TestParseAllowedOrigins_AllowsStarAndNull(t *testing.T) {
	got, err := parseAllowedOrigins("*,null")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 || got[0] != "*" || got[1] != "null" {
		t.Fatalf("got=%v, want [* null]", got)
	}
}

func TestParseAllowedOrigins_RejectsPathQueryAndCredentials(t *testing.T) {
	cases := []string{
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com/?q=1",
		"https://user@example.com",
		"https://example.com/#frag",
	}
	for _, raw := range cases {
		if _, err := parseAllowedOrigins(raw); err == nil {
			t.Fatalf("expected error for %q, got nil", raw)
		}
	}
}

func TestLoadPeerDefaults(t *testing.T) {
	cfg, err := loadPeer(noEnv, nil)
	if err != nil {
		t.Fatalf("loadPeer: %v", err)
	}
	if cfg.RelayURL != DefaultRelayURL {
		t.Fatalf("RelayURL=%q, want %q", cfg.RelayURL, DefaultRelayURL)
	}
	if cfg.Call {
		t.Fatalf("Call=true, want false")
	}
	if cfg.PenColor != DefaultPenColor || cfg.PenSize != DefaultPenSize {
		t.Fatalf("pen=%q/%v", cfg.PenColor, cfg.PenSize)
	}
	if cfg.Network.UDPPortRange != nil {
		t.Fatalf("expected UDPPortRange unset, got %+v", *cfg.Network.UDPPortRange)
	}
	if !cfg.Network.UDPListenIP.Equal(net.IPv4zero) {
		t.Fatalf("UDPListenIP=%v, want 0.0.0.0", cfg.Network.UDPListenIP)
	}
	if cfg.Network.DrawMessageMaxBytes != DefaultDrawMessageMaxBytes {
		t.Fatalf("DrawMessageMaxBytes=%d", cfg.Network.DrawMessageMaxBytes)
	}
	if cfg.Network.SCTPMaxReceiveBufferBytes != DefaultSCTPMaxReceiveBufferBytes {
		t.Fatalf("SCTPMaxReceiveBufferBytes=%d", cfg.Network.SCTPMaxReceiveBufferBytes)
	}
}

func TestLoadPeerFlags(t *testing.T) {
	cfg, err := loadPeer(lookupMap(map[string]string{envVarRelayURL: "wss://board.example.com/ws"}), []string{
		"--call", "--color", "#ff0000", "--size", "12", "--play-ivf", "in.ivf", "--record-ivf", "out.ivf",
	})
	if err != nil {
		t.Fatalf("loadPeer: %v", err)
	}
	if !cfg.Call || cfg.PenColor != "#ff0000" || cfg.PenSize != 12 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.RelayURL != "wss://board.example.com/ws" {
		t.Fatalf("RelayURL=%q", cfg.RelayURL)
	}
	if cfg.PlayIVF != "in.ivf" || cfg.RecordIVF != "out.ivf" {
		t.Fatalf("ivf=%q/%q", cfg.PlayIVF, cfg.RecordIVF)
	}
}

func TestLoadPeerRejectsBadRelayURL(t *testing.T) {
	if _, err := loadPeer(noEnv, []string{"--relay", "http://example.com/ws"}); err == nil {
		t.Fatalf("expected error for http scheme")
	}
}

func TestWebRTCUDPPortRange_RequiresBoth(t *testing.T) {
	_, err := loadPeer(lookupMap(map[string]string{
		envVarWebRTCUDPPortMin: "40000",
	}), nil)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestWebRTCUDPPortRange_OK(t *testing.T) {
	cfg, err := loadPeer(lookupMap(map[string]string{
		envVarWebRTCUDPPortMin: "40000",
		envVarWebRTCUDPPortMax: "40199",
	}), nil)
	if err != nil {
		t.Fatalf("loadPeer: %v", err)
	}
	r := cfg.Network.UDPPortRange
	if r == nil || r.Min != 40000 || r.Max != 40199 {
		t.Fatalf("UDPPortRange=%+v", r)
	}
}

func TestWebRTCUDPPortRange_Inverted(t *testing.T) {
	_, err := loadPeer(noEnv, []string{"--webrtc-udp-port-min", "50000", "--webrtc-udp-port-max", "40000"})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestWebRTCUDPListenIP_Invalid(t *testing.T) {
	_, err := loadPeer(lookupMap(map[string]string{envVarWebRTCUDPListenIP: "nope"}), nil)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}
