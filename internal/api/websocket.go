package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"callscope/internal/jobs"
	"callscope/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

type wsConnection struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	c := &wsConnection{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	updates, unsubscribe := s.deps.Jobs.Subscribe()
	defer unsubscribe()

	go c.writePump()
	for _, job := range s.deps.Jobs.Observe() {
		c.enqueue(s, messageSnapshot, job)
	}
	go func() {
		for {
			select {
			case job, ok := <-updates:
				if !ok {
					c.close()
					return
				}
				c.enqueue(s, messageUpdate, job)
			case <-c.done:
				return
			case <-r.Context().Done():
				c.close()
				return
			}
		}
	}()

	c.readPump(s)
}

// enqueue drops the message when the client is not keeping up.
func (c *wsConnection) enqueue(s *Server, kind string, job jobs.Job) {
	payload, err := json.Marshal(StreamMessage{Type: kind, Job: job})
	if err != nil {
		s.logger.Error("failed to encode job update", logging.Error(err))
		return
	}
	select {
	case c.send <- payload:
	case <-c.done:
	default:
	}
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
			return
		}
	}
}

// readPump discards client frames and returns when the client goes away or
// the connection is closed.
func (c *wsConnection) readPump(s *Server) {
	defer c.close()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		<-c.done
		// Unblock ReadMessage once the writer has had a chance to send the close frame.
		time.Sleep(writeWait / 10)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", logging.Error(err))
			}
			return
		}
	}
}
