package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientHandlers receive inbound events. Either may be nil.
type ClientHandlers struct {
	OnEnvelope func(Envelope)
	OnPeerLeft func(id string)
}

// Client is a peer's connection to the relay.
type Client struct {
	conn *websocket.Conn
	id   string
	log  *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the relay and waits for the connected frame carrying this
// peer's session id.
func Dial(ctx context.Context, rawURL string, header http.Header, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read connected frame: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	frame, err := ParseFrame(data)
	if err != nil || frame.Event != EventConnected {
		_ = conn.Close()
		return nil, fmt.Errorf("expected %q frame, got %q", EventConnected, data)
	}
	var info sessionInfo
	if err := json.Unmarshal(frame.Data, &info); err != nil || info.ID == "" {
		_ = conn.Close()
		return nil, fmt.Errorf("invalid %q frame: %q", EventConnected, data)
	}

	return &Client{
		conn: conn,
		id:   info.ID,
		log:  log.With("session_id", info.ID),
	}, nil
}

func (c *Client) ID() string { return c.id }

// Send transmits env as a propagate frame.
func (c *Client) Send(env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	frame, err := EncodeFrame(EventPropagate, env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Run reads frames until the connection fails or ctx is cancelled. Malformed
// frames and envelopes are logged and skipped. A normal close returns nil.
func (c *Client) Run(ctx context.Context, h ClientHandlers) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		frame, err := ParseFrame(data)
		if err != nil {
			c.log.Warn("ignoring malformed frame", "err", err)
			continue
		}
		switch frame.Event {
		case EventOnPropagate:
			env, err := ParseEnvelope(frame.Data)
			if err != nil {
				c.log.Warn("ignoring malformed envelope", "err", err)
				continue
			}
			if h.OnEnvelope != nil {
				h.OnEnvelope(env)
			}
		case EventPeerLeft:
			var info sessionInfo
			if err := json.Unmarshal(frame.Data, &info); err != nil {
				c.log.Warn("ignoring malformed peerleft", "err", err)
				continue
			}
			if h.OnPeerLeft != nil {
				h.OnPeerLeft(info.ID)
			}
		default:
			c.log.Debug("ignoring frame", "event", frame.Event)
		}
	}
}

// Close sends a normal close frame and closes the socket.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(wsWriteWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
