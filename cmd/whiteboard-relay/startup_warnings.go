package main

import (
	"log/slog"
	"time"

	"github.com/yashikakaushik06/whiteboard-app/internal/config"
	"github.com/yashikakaushik06/whiteboard-app/internal/origin"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if (origin.Policy{Allowed: cfg.AllowedOrigins}).AllowsAny() {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (any web page can use this relay)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxSessions <= 0 {
		logger.Warn("startup security warning: MAX_SESSIONS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_sessions_unlimited_in_prod",
			"max_sessions", cfg.MaxSessions,
			"mode", cfg.Mode,
		)
	}

	// Every session sees every other session's signaling traffic.
	if cfg.MaxSessions > 2 || cfg.MaxSessions <= 0 {
		logger.Info("more than two sessions may join; signaling is broadcast to all of them",
			"warning_code", "multiparty_cross_talk",
			"max_sessions", cfg.MaxSessions,
		)
	}

	if cfg.MaxSignalingMessagesPerSecond <= 0 {
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGES_PER_SECOND is 0 (signaling rate limit disabled)",
			"warning_code", "signaling_rate_limit_disabled",
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxSignalingMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (SDP rarely exceeds a few KiB)",
			"warning_code", "signaling_message_max_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if cfg.SignalingWSIdleTimeout > 10*time.Minute {
		logger.Warn("startup security warning: SIGNALING_WS_IDLE_TIMEOUT is very large (dead sockets hold hub slots)",
			"warning_code", "signaling_idle_timeout_large",
			"signaling_ws_idle_timeout", cfg.SignalingWSIdleTimeout,
			"mode", cfg.Mode,
		)
	}
}
