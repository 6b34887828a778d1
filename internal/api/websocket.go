package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/boxpanel/internal/infrastructure/config"
	"github.com/nerrad567/boxpanel/internal/infrastructure/logging"
	"github.com/nerrad567/boxpanel/internal/telemetry"
)

// wsSendBufferSize is the per-client outbound frame buffer size.
const wsSendBufferSize = 64

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsConn is one dashboard WebSocket connection, adapted to the
// broadcaster's subscriber interface.
//
// All writes to the socket funnel through writePump so frames and pings
// never interleave on the wire. TrySend and Ping only enqueue; the
// broadcaster's sweep goroutine never touches the socket directly.
type wsConn struct {
	conn   *websocket.Conn
	logger *logging.Logger

	send chan []byte
	ping chan struct{}

	closeOnce sync.Once
	done      chan struct{}

	writeWait time.Duration
}

// TrySend queues a frame for delivery without blocking.
// Reports false when the client's buffer is full; the frame is dropped.
func (c *wsConn) TrySend(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Ping queues a liveness probe. Collapses with an already-queued ping.
func (c *wsConn) Ping() error {
	select {
	case c.ping <- struct{}{}:
	case <-c.done:
	default:
	}
	return nil
}

// Close tears the connection down. Safe to call from any goroutine and
// more than once; the pumps observe done and exit.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection
// and subscribes it to the telemetry feed.
// Authentication is via ticket query parameter (obtained from POST /auth/ws-ticket).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	if !s.tickets.validate(ticket) {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsConn{
		conn:      conn,
		logger:    s.logger,
		send:      make(chan []byte, wsSendBufferSize),
		ping:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		writeWait: time.Duration(s.wsCfg.PongTimeout) * time.Second,
	}

	s.broadcaster.Subscribe(client)
	s.logger.Debug("websocket client connected", "subscribers", s.broadcaster.SubscriberCount())

	go client.writePump()
	go client.readPump(s.wsCfg, s.broadcaster)
}

// readPump reads from the socket until it dies.
//
// Inbound frames carry no commands; reading exists to process control
// frames and detect disconnection. Pong receipt is forwarded to the
// broadcaster's liveness bookkeeping.
func (c *wsConn) readPump(cfg config.WebSocketConfig, b *telemetry.Broadcaster) {
	defer func() {
		b.Unsubscribe(c)
		c.Close()
		c.conn.Close() //nolint:errcheck // Best-effort close on teardown
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	// Pings arrive on the broadcaster's sweep cadence; config validation
	// guarantees a sweep cycle fits inside this deadline.
	readWait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		b.Ack(c)
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			} else {
				c.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(readWait))
	}
}

// writePump is the sole writer on the socket. It drains the frame buffer,
// emits queued pings, and sends a close frame on teardown.
func (c *wsConn) writePump() {
	defer c.conn.Close() //nolint:errcheck // Best-effort close on teardown

	for {
		select {
		case frame := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-c.ping:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			//nolint:errcheck // Best-effort close message
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}
