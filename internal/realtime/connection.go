package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBufferSize = 32
	writeTimeout   = 10 * time.Second
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("send buffer full")
)

// frame is the JSON envelope exchanged over the WebSocket in both
// directions.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// inboundFrame is a client-to-server frame. Only typing events carry data
// the server cares about.
type inboundFrame struct {
	Event string `json:"event"`
	Data  struct {
		ReceiverID string `json:"receiverId"`
	} `json:"data"`
}

// wsConnection adapts a gorilla WebSocket connection to chat.Connection.
// All writes go through a buffered channel drained by a single write pump,
// so pushes never block the caller and per-connection ordering is the
// channel's FIFO ordering. A full buffer means the client is too slow to
// keep; Push fails and the router evicts the entry.
type wsConnection struct {
	conn   *websocket.Conn
	send   chan frame
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func newWSConnection(conn *websocket.Conn, logger zerolog.Logger) *wsConnection {
	c := &wsConnection{
		conn:   conn,
		send:   make(chan frame, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writePump()
	return c
}

// Push queues an event for delivery. Never blocks.
func (c *wsConnection) Push(event string, payload any) error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}

	select {
	case c.send <- frame{Event: event, Data: payload}:
		return nil
	case <-c.done:
		return errConnectionClosed
	default:
		return errSendBufferFull
	}
}

// writePump serializes all writes to the underlying connection.
func (c *wsConnection) writePump() {
	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(f); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed, stopping write pump.")
				c.stop()
				return
			}
		case <-c.done:
			return
		}
	}
}

// stop marks the connection dead for pushing. Closing the underlying
// WebSocket is the connect handler's responsibility.
func (c *wsConnection) stop() {
	c.once.Do(func() { close(c.done) })
}
