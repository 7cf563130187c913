// Package live pushes bracket changes to websocket viewers, one room per tournament.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

const (
	MessageMatchesUpdated   = "MATCHES_UPDATED"
	MessageBracketsReplaced = "BRACKETS_REPLACED"
	MessageBracketStatus    = "BRACKET_STATUS"
)

type Message struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId,omitempty"`
	Payload any    `json:"payload"`
}

type MatchesPayload struct {
	BracketID uuid.UUID       `json:"bracketId"`
	Matches   []bracket.Match `json:"matches"`
}

// ConnectionObserver is told about every viewer that connects or leaves.
type ConnectionObserver interface {
	LiveConnectionOpened()
	LiveConnectionClosed()
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	room string
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	rooms      map[string]map[*Client]bool
	mu         sync.RWMutex

	upgrader websocket.Upgrader
	observer ConnectionObserver
	logger   *slog.Logger
}

// NewHub creates a hub accepting connections from allowedOrigins. A "*" entry, or no entries at
// all, accepts any origin.
func NewHub(logger *slog.Logger, allowedOrigins []string, observer ConnectionObserver) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]bool),
		observer:   observer,
		logger:     logger,
	}
	h.upgrader = NewUpgrader(allowedOrigins)
	return h
}

func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
}

func RoomFor(tournamentID uuid.UUID) string {
	return "tournament_" + tournamentID.String()
}

// Run owns client registration until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[client.room]; !ok {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			size := len(h.rooms[client.room])
			h.mu.Unlock()
			if h.observer != nil {
				h.observer.LiveConnectionOpened()
			}
			h.logger.Debug("client registered", "room", client.room, "clients", size)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.rooms {
				for client := range clients {
					h.remove(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove must be called with h.mu held for writing.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.room]
	if !ok || !clients[client] {
		return
	}
	close(client.send)
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.rooms, client.room)
	}
	if h.observer != nil {
		h.observer.LiveConnectionClosed()
	}
	h.logger.Debug("client unregistered", "room", client.room, "clients", len(clients))
}

func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastToRoom sends message to every client in the room. Clients whose buffer is full miss the
// message; the broadcaster never waits.
func (h *Hub) BroadcastToRoom(room string, message Message) {
	message.RoomID = room
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal live message", "room", room, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[room] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client send buffer full, dropping message", "room", room, "type", message.Type)
		}
	}
}

func (h *Hub) MatchesChanged(tournamentID, bracketID uuid.UUID, matches []bracket.Match) {
	h.BroadcastToRoom(RoomFor(tournamentID), Message{
		Type:    MessageMatchesUpdated,
		Payload: MatchesPayload{BracketID: bracketID, Matches: matches},
	})
}

func (h *Hub) BracketsReplaced(tournamentID uuid.UUID, brackets []bracket.Bracket) {
	h.BroadcastToRoom(RoomFor(tournamentID), Message{Type: MessageBracketsReplaced, Payload: brackets})
}

func (h *Hub) BracketStatusChanged(b bracket.Bracket) {
	h.BroadcastToRoom(RoomFor(b.TournamentID), Message{Type: MessageBracketStatus, Payload: b})
}

// ServeRoom upgrades the request and attaches the connection to room.
func (h *Hub) ServeRoom(w http.ResponseWriter, r *http.Request, room string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		h.logger.Warn("websocket upgrade failed", "room", room, "error", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), room: room}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only exists to process pongs and notice the viewer leaving.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket closed unexpectedly", "room", c.room, "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
