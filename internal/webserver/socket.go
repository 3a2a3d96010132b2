package webserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zsprackett/event-reserve/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one open socket. send is closed by removeClient.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, s.cfg.SendBuffer),
	}
	s.addClient(c)
	s.logger.Info("webserver: client connected", "conn", c.id, "remote", r.RemoteAddr)

	go s.writePump(c)
	s.onConnect(c.id)
	s.readPump(c)

	s.removeClient(c)
	s.logger.Info("webserver: client disconnected", "conn", c.id)
	s.onDisconnect(c.id)
}

// readPump handles inbound frames until the socket fails.
func (s *Server) readPump(c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("webserver: read", "conn", c.id, "err", err)
			}
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			s.logger.Warn("webserver: dropping frame", "conn", c.id, "err", err)
			continue
		}
		s.dispatch(c.id, env)
	}
}

// writePump is the only writer on c.conn.
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
