package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/talgya/dwarfhold/internal/cognition"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Envelope is one message pushed to stream clients.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub streams cognition notifications to websocket clients. It is a
// cognition.Listener: broadcasts never block, and a client that cannot keep
// up loses messages rather than stalling the simulation.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	dropped int
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) OnThought(n cognition.ThoughtNote) { h.broadcast("thought", n) }
func (h *Hub) OnSpeech(n cognition.SpeechNote)   { h.broadcast("speech", n) }

func (h *Hub) OnSidebarUpdate(list []cognition.ThoughtNote) {
	h.broadcast("sidebar", list)
}

func (h *Hub) OnConversationEnd(c cognition.Conversation) {
	h.broadcast("conversation_end", c)
}

func (h *Hub) broadcast(kind string, v any) {
	b, err := json.Marshal(Envelope{Type: kind, Data: v})
	if err != nil {
		h.logger.Warn("stream encode failed", zap.String("type", kind), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.dropped++
		}
	}
}

// Clients returns the number of connected stream clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams until the client goes away.
// The first message is a hello carrying the client's ID.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	hello, _ := json.Marshal(Envelope{Type: "hello", Data: map[string]string{"client_id": c.id}})
	c.send <- hello

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("stream client connected", zap.String("client", c.id))

	done := make(chan struct{})
	go h.writeLoop(c, done)

	// Clients only listen; reading keeps pongs and the close handshake flowing.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c.id)
	close(c.send)
	h.mu.Unlock()
	<-done
	_ = conn.Close()
	h.logger.Debug("stream client disconnected", zap.String("client", c.id))
}

func (h *Hub) writeLoop(c *client, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				// Unblocks the read loop in ServeHTTP.
				_ = c.conn.Close()
				for range c.send {
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.conn.Close()
				for range c.send {
				}
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		_ = c.conn.Close()
	}
}
