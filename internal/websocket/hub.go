package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"backoffice/internal/logger"
	"backoffice/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the JSON frame pushed to connected clients.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	Time  string      `json:"time"`
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []byte
	Actor policy.Actor
}

// receives reports whether an event about an invoice owned by ownerID may reach c.
func (c *Client) receives(ownerID uuid.UUID) bool {
	return !c.Actor.OwnInvoicesOnly() || c.Actor.UserID == ownerID
}

type envelope struct {
	ownerID uuid.UUID
	payload []byte
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	log        zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        logger.WithComponent("websocket"),
	}
}

// Run dispatches register, unregister and broadcast events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug().Int("clients", h.Count()).Msg("client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.log.Debug().Msg("client disconnected")
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.receives(message.ownerID) {
					continue
				}
				select {
				case client.Send <- message.payload:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Count reports the connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues an event about an invoice owned by ownerID. Clients limited to
// their own invoices only receive events for invoices they own. Events are
// dropped when the queue is full.
func (h *Hub) Publish(event string, ownerID uuid.UUID, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data, Time: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	select {
	case h.broadcast <- envelope{ownerID: ownerID, payload: payload}:
	default:
		h.log.Warn().Str("event", event).Msg("broadcast queue full, event dropped")
	}
}

func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		_, _ = w.Write(message)

		n := len(c.Send)
		for i := 0; i < n; i++ {
			_, _ = w.Write([]byte{'\n'})
			_, _ = w.Write(<-c.Send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}
	}
}

// Resolver validates an access token and returns its actor.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (policy.Actor, error)
}

// ServeWs authenticates the ?token= query parameter and upgrades the
// connection. The caller must be able to view invoices.
func ServeWs(hub *Hub, auth Resolver, c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		hub.log.Info().Msg("connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	actor, err := auth.Resolve(c.Request.Context(), raw)
	if err != nil {
		hub.log.Info().Err(err).Msg("connection rejected: invalid token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if !actor.IsSuperAdmin() && !actor.HasPermission("invoice.view") {
		hub.log.Info().Str("user_id", actor.UserID.String()).Msg("connection rejected: missing invoice.view")
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Error().Err(err).Msg("upgrade failed")
		return
	}
	client := &Client{Hub: hub, Conn: conn, Send: make(chan []byte, 256), Actor: actor}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
