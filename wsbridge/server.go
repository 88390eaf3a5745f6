package wsbridge

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"surveyor/research"
	"surveyor/store"
	"surveyor/streamers"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	runStartTimeout = 30 * time.Second
)

// ResearchRunner starts a research run and reports progress through the handler.
// *research.Orchestrator satisfies this.
type ResearchRunner interface {
	Run(ctx context.Context, query string, handler streamers.ResearchHandler) (*research.Result, error)
}

// Server accepts WebSocket connections and serves research runs and their
// stored history to connected clients.
type Server struct {
	addr   string
	stores *store.Bundle
	runner ResearchRunner

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// NewServer creates a websocket event server
func NewServer(addr string, stores *store.Bundle, runner ResearchRunner) *Server {
	return &Server{
		addr:   addr,
		stores: stores,
		runner: runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// Handler returns the HTTP handler serving the /ws endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe blocks serving websocket connections on /ws until the
// context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {

	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Event server listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade: %v", err)
		return
	}

	c := &conn{
		server: s,
		ws:     ws,
		send:   make(chan []byte, 256),
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go c.writePump()
	c.readPump()
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Broadcast sends a one-way envelope to every connected client.
func (s *Server) Broadcast(env *Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Broadcast marshal: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		select {
		case c.send <- data:
		default:
			// Slow consumer, drop the event rather than block the run
		}
	}
}

// conn is a single client connection with its own write pump
type conn struct {
	server *Server
	ws     *websocket.Conn
	send   chan []byte
}

func (c *conn) readPump() {
	defer func() {
		c.server.removeConn(c)
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("Invalid message from client: %v", err)
			continue
		}

		c.dispatch(&env)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *conn) dispatch(env *Envelope) {
	switch env.Type {
	case TypeHeartbeat:
		ack, _ := NewResponse(env.RequestID, TypeHeartbeatAck, &HeartbeatAckPayload{})
		c.sendEnvelope(ack)
	default:
		resp, err := c.server.handleRequest(c, env)
		if err != nil {
			errResp, _ := NewError(env.RequestID, "handler_error", err.Error())
			c.sendEnvelope(errResp)
			return
		}
		if resp != nil {
			c.sendEnvelope(resp)
		}
	}
}

func (c *conn) sendEnvelope(env *Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("marshal envelope: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
