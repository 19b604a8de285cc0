package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// client is one WebSocket subscriber. Frames are queued on out and written
// by the client's own goroutine, so a slow reader never stalls the others.
type client struct {
	conn *websocket.Conn
	out  chan []byte
}

// Broadcast queues msg for every connected client. It never blocks: when
// the queue is full, or the server is stopped, the message is dropped.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("WARNING: dropping %s: %v", msg.Type, err)
		return
	}

	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.events <- frame:
	default:
		s.logger.Printf("WARNING: event queue full, dropping %s", msg.Type)
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) fanOut() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.events:
			s.mu.Lock()
			for c := range s.clients {
				select {
				case c.out <- frame:
				default:
					s.logger.Println("WARNING: client queue full, disconnecting")
					s.dropLocked(c, websocket.StatusPolicyViolation, "too slow")
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WARNING: websocket upgrade: %v", err)
		return
	}

	c := &client{conn: conn, out: make(chan []byte, clientQueueSize)}

	hello, _ := json.Marshal(Message{
		Type:      MessageTypeHello,
		Timestamp: time.Now(),
		Data:      json.RawMessage(`{"version":1}`),
	})
	c.out <- hello

	// Clients only listen; CloseRead discards their frames and cancels ctx
	// once the connection goes away.
	ctx := conn.CloseRead(s.ctx)

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Printf("Client connected (%d total)", n)

	s.writeLoop(ctx, c)

	s.mu.Lock()
	s.dropLocked(c, websocket.StatusNormalClosure, "")
	n = len(s.clients)
	s.mu.Unlock()
	s.logger.Printf("Client disconnected (%d total)", n)
}

// writeLoop sends queued frames until the client or the server goes away.
func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.out:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// dropLocked unregisters c and closes its connection. s.mu must be held.
func (s *Server) dropLocked(c *client, code websocket.StatusCode, reason string) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.out)
	go c.conn.Close(code, reason)
}

func (s *Server) disconnectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		s.dropLocked(c, websocket.StatusGoingAway, "server shutting down")
	}
}
