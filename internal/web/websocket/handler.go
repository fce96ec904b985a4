package websocket

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// panel clients only answer pings
	maxMessageSize = 512
)

// Cross-origin upgrades are refused by the default origin check
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// session is one panel connection: the hub feeds client.Send, the session
// copies it onto conn
type session struct {
	client *Client
	conn   *websocket.Conn
	log    *logrus.Entry
}

// WebSocketHandler upgrades the request and streams hub broadcasts to it
// until either side goes away
func WebSocketHandler(hub *Hub, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).Warn("Failed to upgrade connection to WebSocket")
			return
		}

		s := &session{
			client: NewClient(uuid.NewString(), hub),
			conn:   conn,
		}
		s.log = log.WithFields(logrus.Fields{
			"component": "panel_ws",
			"client":    s.client.ID,
			"remote":    c.ClientIP(),
		})

		if !hub.Register(s.client) {
			s.log.Debug("Hub stopped, refusing connection")
			conn.Close()
			return
		}
		s.log.Info("Panel client connected")

		go s.forward()
		s.drain()
	}
}

// drain consumes client frames so pongs and close frames are processed. It
// returns once the connection fails, then releases the client.
func (s *session) drain() {
	defer func() {
		s.client.Close()
		s.conn.Close()
		s.log.Info("Panel client disconnected")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Warn("Panel connection dropped")
			}
			return
		}
	}
}

// forward writes every queued event as its own text frame and keeps the
// connection alive with pings
func (s *session) forward() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case event, ok := <-s.client.Send:
			if !ok {
				// dropped by the hub
				s.write(websocket.CloseMessage, nil)
				return
			}
			if err := s.write(websocket.TextMessage, event); err != nil {
				s.log.WithError(err).Warn("Failed to write event")
				return
			}

		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.log.WithError(err).Debug("Failed to ping panel client")
				return
			}

		case <-s.client.closeCh:
			return
		}
	}
}

func (s *session) write(messageType int, data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}
