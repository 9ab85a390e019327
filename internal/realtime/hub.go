package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bidflow/internal/models"
	"bidflow/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// Message is what websocket subscribers receive
type Message struct {
	Topic string       `json:"topic"`
	Event models.Event `json:"event"`
}

// WSCommand is what websocket subscribers may send to change their topics
type WSCommand struct {
	Type   string   `json:"type"` // "subscribe", "unsubscribe"
	Topics []string `json:"topics"`
}

type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	topics     map[string]bool
	topicsLock sync.RWMutex
}

// Hub delivers published events to websocket clients subscribed to the event's topic.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			utils.Debug("realtime: client connected", map[string]any{"clients": total})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			utils.Debug("realtime: client disconnected", map[string]any{"clients": total})

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				utils.Error("realtime: marshal message", map[string]any{"topic": msg.Topic, "error": err.Error()})
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				if !client.subscribed(msg.Topic) {
					continue
				}
				select {
				case client.send <- data:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues the event for delivery. It never blocks.
func (h *Hub) Publish(_ context.Context, topic string, event models.Event) error {
	select {
	case h.broadcast <- Message{Topic: topic, Event: event}:
		return nil
	default:
		return fmt.Errorf("realtime: hub backlog full, dropped %s on %s", event.Type, topic)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles GET /ws?topic=auction:<id>&topic=user:<id>
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Warn("realtime: websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]bool),
	}
	for _, topic := range c.QueryArray("topic") {
		client.topics[topic] = true
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) subscribed(topic string) bool {
	c.topicsLock.RLock()
	defer c.topicsLock.RUnlock()
	return c.topics[topic]
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

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.Warn("realtime: websocket read error", map[string]any{"error": err.Error()})
			}
			return
		}

		var cmd WSCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			utils.Warn("realtime: invalid command", map[string]any{"error": err.Error()})
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd WSCommand) {
	c.topicsLock.Lock()
	defer c.topicsLock.Unlock()

	switch cmd.Type {
	case "subscribe":
		for _, topic := range cmd.Topics {
			c.topics[topic] = true
		}
	case "unsubscribe":
		for _, topic := range cmd.Topics {
			delete(c.topics, topic)
		}
	default:
		utils.Warn("realtime: unknown command", map[string]any{"type": cmd.Type})
	}
}
