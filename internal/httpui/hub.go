package httpui

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait     = 5 * time.Second
	pongWait      = 60 * time.Second
	pingEvery     = 25 * time.Second
	clientBacklog = 32
	maxRequest    = 4096
)

// Response is every frame the UI receives.
type Response struct {
	Cmd  string `json:"cmd"`
	Data any    `json:"data"`
}

type request struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data"`
}

// hub tracks UI websocket clients. Replies go to the requesting client;
// controller events go to all of them.
type hub struct {
	upgrader websocket.Upgrader
	handle   func(c *client, req request)
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	h    *hub
}

func newHub(handle func(*client, request), log *slog.Logger) *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Local UI; any page the user opened may drive it.
				return true
			},
		},
		handle:  handle,
		log:     log,
		clients: map[*client]struct{}{},
	}
}

func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBacklog), h: h}
	h.addClient(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *hub) broadcast(resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		h.log.Warn("ui event not encoded", "cmd", resp.Cmd, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueueLocked(c, b)
	}
}

// reply sends resp to c alone.
func (c *client) reply(resp Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		c.h.log.Warn("ui reply not encoded", "cmd", resp.Cmd, "error", err)
		return
	}
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	if _, ok := c.h.clients[c]; ok {
		c.h.enqueueLocked(c, b)
	}
}

func (h *hub) enqueueLocked(c *client, b []byte) {
	select {
	case c.send <- b:
	default:
		// Slow client; drop it.
		h.dropLocked(c)
	}
}

func (h *hub) dropLocked(c *client) {
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
}

func (h *hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.dropLocked(c)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) readPump(c *client) {
	defer h.removeClient(c)
	c.conn.SetReadLimit(maxRequest)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, b, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if typ != websocket.TextMessage {
			continue
		}
		var req request
		if err := json.Unmarshal(b, &req); err != nil || req.Cmd == "" {
			h.log.Warn("invalid ui message", "message", string(b))
			continue
		}
		h.handle(c, req)
	}
}

func (h *hub) writePump(c *client) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
