// Package ws implements the WebSocket adapter that pushes snapshot and
// watchdog events to dashboard clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 16
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// client is one dashboard connection. Writes go through out so a slow
// client never holds up a broadcast.
type client struct {
	ws     *websocket.Conn
	out    chan []byte
	cancel context.CancelFunc
	remote string
}

// Hub tracks dashboard connections and fans events out to them.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	onConnect func() (Message, bool)
	origins   []string
}

// NewHub creates a hub accepting upgrades from the given origin host
// patterns. With none, only same-origin upgrades are accepted.
func NewHub(originPatterns ...string) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		origins: originPatterns,
	}
}

// OriginPatterns turns a comma-separated list of origins, as used for CORS,
// into host patterns for the upgrade check.
func OriginPatterns(allowed string) []string {
	var out []string
	for _, o := range strings.Split(allowed, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		out = append(out, o)
	}
	return out
}

// SetOnConnect registers a function whose message, when ok, is sent to each
// client right after it connects.
func (h *Hub) SetOnConnect(fn func() (Message, bool)) {
	h.mu.Lock()
	h.onConnect = fn
	h.mu.Unlock()
}

// HandleWS upgrades the request and starts the client's read and write loops.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{ws: conn, out: make(chan []byte, sendBuffer), cancel: cancel, remote: r.RemoteAddr}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	onConnect := h.onConnect
	h.mu.Unlock()
	slog.Info("websocket connected", "remote", c.remote)

	if onConnect != nil {
		if msg, ok := onConnect(); ok {
			if data, err := json.Marshal(msg); err == nil {
				h.enqueue(c, data)
			}
		}
	}

	go h.writeLoop(ctx, c)
	go h.readLoop(ctx, c)
}

// readLoop consumes control frames and notices disconnects.
func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		if _, _, err := c.ws.Read(ctx); err != nil {
			h.remove(c, websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "remote", c.remote, "error", err)
				h.remove(c, websocket.StatusGoingAway, "write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				h.remove(c, websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

// Broadcast queues msg for every connected client.
func (h *Hub) Broadcast(_ context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.enqueue(c, data)
	}
}

// enqueue hands data to the client's writer, disconnecting a client whose
// queue is full.
func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case c.out <- data:
	default:
		slog.Warn("websocket client too slow, disconnecting", "remote", c.remote)
		h.remove(c, websocket.StatusPolicyViolation, "client too slow")
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.cancel()
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) remove(c *client, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.cancel()
	_ = c.ws.Close(code, reason)
	slog.Info("websocket disconnected", "remote", c.remote)
}
