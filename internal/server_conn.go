package internal

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxMsgSize   = 8192
	sendQueueLen = 256
	readQueueLen = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn is the transport side of one connection. It implements Sender.
//
// Three goroutines serve it: readPump reads frames off the socket, dispatch
// hands them to the session in order and writePump drains the send queue.
// Closing the connection cancels the context dispatch passes to the session,
// so a store call made for a connection that is gone returns early.
type wsConn struct {
	id        ConnID
	conn      *websocket.Conn
	send      chan []byte
	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
	logger    *slog.Logger
}

func newWSConn(id ConnID, conn *websocket.Conn, cancel context.CancelFunc, logger *slog.Logger) *wsConn {
	return &wsConn{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, sendQueueLen),
		inbound: make(chan []byte, readQueueLen),
		done:    make(chan struct{}),
		cancel:  cancel,
		logger:  logger,
	}
}

// Send queues frame for the write pump. A connection that cannot keep up is
// closed instead of slowing the room down.
func (c *wsConn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("send queue full, closing connection")
		c.close()
		return false
	}
}

// close cancels the session context and stops the write pump, which closes
// the socket and so ends the read pump.
func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
	})
}

// readPump reads frames until the socket fails. It never waits on the session,
// so a closed socket is noticed even while dispatch is busy.
func (c *wsConn) readPump() {
	defer func() {
		c.close()
		close(c.inbound)
	}()
	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", "err", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case c.inbound <- payload:
		case <-c.done:
			return
		}
	}
}

// dispatch feeds inbound frames to the session one at a time. Frames read
// before the socket failed are still handled, then the session disconnects.
func (c *wsConn) dispatch(ctx context.Context, session *ChatSession) {
	defer session.Disconnect()
	for payload := range c.inbound {
		session.Handle(ctx, payload)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
