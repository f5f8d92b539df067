package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stagelink/server/pkg/wire"
)

// Client is one connected performer.
type Client struct {
	ID       string
	JoinedAt time.Time

	conn *websocket.Conn
	send chan wire.Packet
	log  zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(id string, conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		ID:       id,
		JoinedAt: time.Now(),
		conn:     conn,
		send:     make(chan wire.Packet, sendQueueLen),
		log:      log,
		done:     make(chan struct{}),
	}
}

// enqueue queues an outbound packet. False when the client is shutting down
// or its queue is full (slow consumer); the packet is dropped in both cases.
func (c *Client) enqueue(pkt wire.Packet) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- pkt:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// shutdown signals the pumps to exit. Safe to call multiple times.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readLoop reads frames, decodes them into packets and hands them to
// dispatch in arrival order. Malformed frames are answered with an error
// packet and the connection stays open. Returns when the connection dies.
func (c *Client) readLoop(ctx context.Context, wg *sync.WaitGroup, dispatch func(wire.Packet)) {
	defer wg.Done()

	c.conn.SetReadLimit(maxPacketBytes)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("connection closed by client")
			} else if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		var pkt wire.Packet
		if err = json.Unmarshal(raw, &pkt); err != nil {
			c.log.Warn().Err(err).Msg("malformed packet")
			c.enqueue(wire.NewError(wire.CodeVersionMismatch, "malformed packet", ""))
			continue
		}
		dispatch(pkt)
	}
}

// writeLoop drains the send queue and keeps the connection alive with
// transport pings. Returns on the first write failure.
func (c *Client) writeLoop(ctx context.Context, wg *sync.WaitGroup) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				c.log.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		case pkt := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				c.log.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := c.conn.WriteJSON(pkt); err != nil {
				c.log.Debug().Err(err).Str("op", string(pkt.Op)).Msg("write failed")
				return
			}
		}
	}
}

// closeConn sends a close frame and tears the connection down.
func (c *Client) closeConn() {
	if err := c.conn.SetWriteDeadline(time.Now().Add(closeWriteDeadline)); err == nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	_ = c.conn.Close()
}

// kick closes the connection to make room for a newer one.
func (c *Client) kick() {
	if err := c.conn.SetWriteDeadline(time.Now().Add(closeWriteDeadline)); err == nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "displaced by a newer connection"))
	}
	c.shutdown()
	_ = c.conn.Close()
}
