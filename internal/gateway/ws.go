package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/gobutler/internal/bus"
)

const (
	// wsSendBuffer is the per-client event queue. A client that falls
	// this far behind starts losing events rather than stalling the bus.
	wsSendBuffer = 32

	wsWriteTimeout = 10 * time.Second
)

// wsClient is one connected WebSocket consumer of the event stream.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan bus.Event
	done chan struct{}
}

// handleWebSocket upgrades the connection and streams bus events until
// the client disconnects. The stream is push-only; inbound frames are
// read and discarded to surface close errors.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan bus.Event, wsSendBuffer),
		done: make(chan struct{}),
	}

	s.registerClient(c)
	s.log.Info("websocket client connected", "client", c.id)

	go c.writePump(s.log)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.unregisterClient(c)
	conn.Close()
	s.log.Info("websocket client disconnected", "client", c.id)
}

func (s *Server) registerClient(c *wsClient) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Subscribe(c.id, func(ev bus.Event) {
			// Bus handlers must not block; a full queue drops the event.
			select {
			case c.send <- ev:
			default:
			}
		})
	}
}

// unregisterClient detaches the client from the bus. c.send is never
// closed: a Broadcast in flight may still be holding the handler, and
// writePump exits via done instead.
func (s *Server) unregisterClient(c *wsClient) {
	if s.bus != nil {
		s.bus.Unsubscribe(c.id)
	}

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	close(c.done)
}

func (c *wsClient) writePump(log *slog.Logger) {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Debug("websocket write failed", "client", c.id, "error", err)
				return
			}
		}
	}
}
