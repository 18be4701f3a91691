package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yashikakaushik06/whiteboard-app/internal/httpserver"
	"github.com/yashikakaushik06/whiteboard-app/internal/metrics"
	"github.com/yashikakaushik06/whiteboard-app/internal/origin"
	"github.com/yashikakaushik06/whiteboard-app/internal/ratelimit"
	"github.com/yashikakaushik06/whiteboard-app/internal/relay"
)

const wsWriteWait = 1 * time.Second

// Config wires together the runtime dependencies for the signaling endpoint.
type Config struct {
	Hub     *relay.Hub
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Origins origin.Policy

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	PingInterval         time.Duration
	IdleTimeout          time.Duration

	// Clock drives the per-connection rate limiter. Nil means wall time.
	Clock ratelimit.Clock
}

// Server implements GET /ws.
type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 64 * 1024
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.IdleTimeout {
		cfg.PingInterval = cfg.IdleTimeout / 3
	}

	s := &Server{cfg: cfg, log: log}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if cfg.Origins.CheckRequest(r) {
				return true
			}
			cfg.Metrics.Inc(metrics.DropReasonOriginRejected)
			log.Warn("rejected signaling origin", "origin", r.Header.Get("Origin"), "host", r.Host)
			return false
		},
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Hub == nil {
		http.Error(w, "hub not configured", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	log := s.log.With("remote_addr", r.RemoteAddr)
	if id := httpserver.RequestID(r.Context()); id != "" {
		log = log.With("request_id", id)
	}
	wss := &wsSession{
		srv:     s,
		conn:    conn,
		log:     log,
		limiter: ratelimit.NewMessageLimiter(s.cfg.Clock, s.cfg.MaxMessagesPerSecond),
	}
	wss.run(r.Context())
}

type wsSession struct {
	srv     *Server
	conn    *websocket.Conn
	log     *slog.Logger
	limiter *ratelimit.MessageLimiter

	sess    *relay.Session
	relayed int

	writeMu sync.Mutex
}

// run serves one socket until it ends. The session id, close reason and
// relayed count are added to the request's access log line.
func (wss *wsSession) run(ctx context.Context) {
	defer wss.conn.Close()

	sess, err := wss.srv.cfg.Hub.Connect()
	if err != nil {
		httpserver.AddLogAttrs(ctx, "close_reason", err.Error())
		if errors.Is(err, relay.ErrTooManySessions) {
			wss.log.Warn("rejecting signaling client", "err", err)
			wss.closeWith(websocket.CloseTryAgainLater, "too many sessions")
			return
		}
		wss.log.Error("failed to register signaling client", "err", err)
		wss.closeWith(websocket.CloseInternalServerErr, "internal error")
		return
	}
	wss.sess = sess
	wss.log = wss.log.With("session_id", sess.ID())
	httpserver.AddLogAttrs(ctx, "session_id", sess.ID())

	hello, err := EncodeFrame(EventConnected, sessionInfo{ID: sess.ID()})
	if err == nil {
		err = wss.write(websocket.TextMessage, hello)
	}
	if err != nil {
		reason := fmt.Sprintf("transport error: %v", err)
		httpserver.AddLogAttrs(ctx, "close_reason", reason)
		sess.Close(reason)
		return
	}

	writerDone := make(chan struct{})
	go wss.writeLoop(writerDone)

	reason := wss.readLoop()
	httpserver.AddLogAttrs(ctx, "close_reason", reason, "messages_relayed", wss.relayed)
	sess.Close(reason)
	<-writerDone
}

// readLoop returns the disconnect reason.
func (wss *wsSession) readLoop() string {
	cfg := wss.srv.cfg
	wss.conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = wss.conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	wss.conn.SetPongHandler(func(string) error {
		return wss.conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	})

	for {
		msgType, data, err := wss.conn.ReadMessage()
		if err != nil {
			return wss.readErrorReason(err)
		}
		_ = wss.conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))

		// Rate limit after reading so the close frame is not lost to a TCP
		// reset over unread bytes.
		if !wss.limiter.Allow() {
			cfg.Metrics.Inc(metrics.DropReasonRateLimited)
			wss.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return "rate limit exceeded"
		}
		if msgType != websocket.TextMessage {
			wss.drop("expected text message")
			continue
		}

		frame, err := ParseFrame(data)
		if err != nil {
			wss.drop(err.Error())
			continue
		}
		if frame.Event != EventPropagate {
			wss.drop(fmt.Sprintf("unexpected event %q", frame.Event))
			continue
		}
		env, err := ParseEnvelope(frame.Data)
		if err != nil {
			wss.drop(err.Error())
			continue
		}

		n, err := cfg.Hub.Propagate(wss.sess, rawFrame(EventOnPropagate, frame.Data))
		if err != nil {
			return fmt.Sprintf("propagate after close: %v", err)
		}
		wss.relayed++
		wss.log.Debug("propagated signaling message", "kind", env.Kind().String(), "recipients", n)
	}
}

func (wss *wsSession) readErrorReason(err error) string {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		return fmt.Sprintf("client closed (%d %s)", closeErr.Code, closeErr.Text)
	case errors.Is(err, websocket.ErrReadLimit):
		// gorilla has already sent 1009.
		return "message too large"
	case errors.Is(err, net.ErrClosed):
		return "connection closed"
	case isTimeout(err):
		wss.closeWith(websocket.CloseNormalClosure, "idle timeout")
		return "idle timeout"
	default:
		wss.log.Warn("signaling transport error", "err", err)
		return fmt.Sprintf("transport error: %v", err)
	}
}

func (wss *wsSession) drop(why string) {
	wss.srv.cfg.Metrics.Inc(metrics.DropReasonInvalidEnvelope)
	wss.log.Debug("dropping malformed signaling message", "reason", why)
}

// writeLoop drains the relay session queue and keeps the socket alive with
// pings. It exits when the session closes or a write fails.
func (wss *wsSession) writeLoop(done chan<- struct{}) {
	defer close(done)

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(wss.srv.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := wss.ping(); err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	for {
		frame, ok := wss.sess.Next()
		if !ok {
			// Closed by the hub (shutdown) or after the reader exited; either
			// way the socket is done.
			wss.closeWith(websocket.CloseGoingAway, "session closed")
			_ = wss.conn.Close()
			return
		}
		if err := wss.write(websocket.TextMessage, frame); err != nil {
			wss.log.Warn("signaling write failed", "err", err)
			// Unblocks the reader so the session is deregistered.
			_ = wss.conn.Close()
			return
		}
	}
}

func (wss *wsSession) write(msgType int, data []byte) error {
	wss.writeMu.Lock()
	defer wss.writeMu.Unlock()
	_ = wss.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return wss.conn.WriteMessage(msgType, data)
}

func (wss *wsSession) ping() error {
	wss.writeMu.Lock()
	defer wss.writeMu.Unlock()
	return wss.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (wss *wsSession) closeWith(code int, reason string) {
	wss.writeMu.Lock()
	defer wss.writeMu.Unlock()
	_ = wss.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
