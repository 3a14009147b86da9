// Package websocket pushes knowledge-base changes to connected dashboards.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"lookupbot/internal/knowledge"
	"lookupbot/internal/model"
)

const previewRunes = 80

type Hub struct {
	Knowledge *knowledge.Service
	upgrader  gws.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn    *gws.Conn
	writeMu sync.Mutex
}

func NewHub(svc *knowledge.Service) *Hub {
	return &Hub{
		Knowledge: svc,
		upgrader: gws.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[*client]struct{}{},
	}
}

// Start fans change events out to every client until ctx is done. It must be
// the only reader of the service's Changes channel.
func (h *Hub) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case change := <-h.Knowledge.Changes:
				h.broadcast(map[string]any{
					"type": string(change.Kind),
					"data": changeHint(change),
				})
			}
		}
	}()
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	h.register(c)
	defer h.unregister(c)
	defer conn.Close()

	_ = c.write(map[string]any{"type": "ack", "ok": true, "ref_id": "connected"})
	_ = c.write(map[string]any{
		"type":    "initial_image",
		"entries": h.Knowledge.Len(),
	})
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req map[string]any
		if err := json.Unmarshal(b, &req); err != nil {
			_ = c.write(map[string]any{"type": "error", "code": "BAD_PAYLOAD", "message": "invalid JSON"})
			continue
		}
		msgType, _ := req["type"].(string)
		switch msgType {
		case "ping":
			_ = c.write(map[string]any{"type": "pong"})
		case "match":
			q, _ := req["q"].(string)
			if q == "" {
				_ = c.write(map[string]any{"type": "error", "code": "VALIDATION_ERROR", "message": "q required"})
				continue
			}
			_ = c.write(map[string]any{"type": "match", "q": q, "texts": h.Knowledge.Match(q)})
		default:
			_ = c.write(map[string]any{"type": "error", "code": "UNKNOWN_TYPE", "message": "unsupported message type"})
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *Hub) broadcast(msg map[string]any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.write(msg)
	}
}

func (c *client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func changeHint(change model.Change) map[string]any {
	hint := map[string]any{
		"id":         change.ID,
		"keys":       change.Keys,
		"count":      change.Count,
		"created_at": change.CreatedAt,
	}
	if change.Text != "" {
		hint["preview"] = knowledge.Preview(change.Text, previewRunes)
	}
	return hint
}
