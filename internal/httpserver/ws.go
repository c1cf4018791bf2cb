package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memory/internal/game"
)

const wsWriteWait = 5 * time.Second

// wsClient serialises writes to one connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

// hub fans state snapshots out to every socket watching a game.
type hub struct {
	mu      sync.Mutex
	clients map[string]map[*wsClient]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[string]map[*wsClient]struct{})}
}

func (h *hub) add(id string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[id] == nil {
		h.clients[id] = make(map[*wsClient]struct{})
	}
	h.clients[id][c] = struct{}{}
}

func (h *hub) remove(id string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[id], c)
	if len(h.clients[id]) == 0 {
		delete(h.clients, id)
	}
}

func (h *hub) watchers(id string) []*wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*wsClient, 0, len(h.clients[id]))
	for c := range h.clients[id] {
		out = append(out, c)
	}
	return out
}

func (h *hub) publish(id string, v any) {
	for _, c := range h.watchers(id) {
		if err := c.send(v); err != nil {
			log.Debug().Err(err).Str("gameId", id).Msg("drop websocket")
			h.remove(id, c)
			_ = c.conn.Close()
		}
	}
}

func (h *hub) closeGame(id string) {
	for _, c := range h.watchers(id) {
		h.remove(id, c)
		_ = c.conn.Close()
	}
}

// wsEvent is a client message: {"type":"press","x":..,"y":..} or {"type":"key","key":"n"}.
type wsEvent struct {
	Type string   `json:"type"`
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	Key  string   `json:"key"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || o == s.origin || o == "http://"+r.Host || o == "https://"+r.Host
		},
	}
}

// handleWS streams snapshots and accepts events over one socket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := gameID(r)

	var first stateRes
	if err := s.store.Do(r.Context(), id, func(g *game.Session) { first = buildState(id, g) }); err != nil {
		s.storeError(w, id, err)
		return
	}

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("gameId", id).Msg("websocket upgrade")
		return
	}
	c := &wsClient{conn: conn}
	s.hub.add(id, c)
	defer func() {
		s.hub.remove(id, c)
		_ = conn.Close()
	}()

	if err := c.send(first); err != nil {
		return
	}

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev wsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			_ = c.send(map[string]string{"error": "bad_json"})
			continue
		}

		switch ev.Type {
		case "press":
			if ev.X == nil || ev.Y == nil {
				_ = c.send(map[string]string{"error": "bad_json"})
				continue
			}
			_, err = s.press(ctx, id, *ev.X, *ev.Y)
		case "key":
			k, kerr := parseKey(ev.Key)
			if kerr != nil {
				_ = c.send(map[string]string{"error": "bad_key"})
				continue
			}
			_, err = s.key(ctx, id, k)
		default:
			_ = c.send(map[string]string{"error": "unknown_event"})
			continue
		}
		if err != nil {
			_ = c.send(map[string]string{"error": "not_found"})
			return
		}
	}
}
