package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"brand-studio/server/internal/logger"
	"brand-studio/server/internal/models"
)

const (
	pingInterval = 30 * time.Second
	readDeadline = 60 * time.Second
	sendBuffer   = 256
)

// Client is one websocket connection subscribed to a workspace.
type Client struct {
	ID        string
	Workspace string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *EventHub
	mu        sync.Mutex
	closed    bool
}

// EventHub fans workspace events out to the websocket clients watching that
// workspace.
type EventHub struct {
	clients    map[string]map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.Event
	done       chan struct{}
	mu         sync.RWMutex
	log        *logger.Logger
}

func NewEventHub(log *logger.Logger) *EventHub {
	if log == nil {
		log = logger.Nop()
	}
	return &EventHub{
		clients:    make(map[string]map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan models.Event, 1000),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run is the hub's event loop. It returns after Stop.
func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.broadcast:
			h.deliver(ev)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *EventHub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *EventHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ws := h.clients[client.Workspace]
	if ws == nil {
		ws = make(map[string]*Client)
		h.clients[client.Workspace] = ws
	}
	ws[client.ID] = client
	h.log.Debug("event client connected", "workspace", client.Workspace, "client", client.ID, "watchers", len(ws))

	go client.writePump()
}

func (h *EventHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ws := h.clients[client.Workspace]
	if _, ok := ws[client.ID]; !ok {
		return
	}
	delete(ws, client.ID)
	close(client.Send)
	if len(ws) == 0 {
		delete(h.clients, client.Workspace)
	}
	h.log.Debug("event client disconnected", "workspace", client.Workspace, "client", client.ID)
}

func (h *EventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ws, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.clients, ws)
	}
}

func (h *EventHub) deliver(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to marshal event", "topic", ev.Topic, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients[ev.Workspace] {
		select {
		case client.Send <- data:
		default:
			h.log.Warn("event client send buffer full", "client", client.ID)
		}
	}
}

// Publish queues an event for the clients of ev.Workspace. It never blocks.
func (h *EventHub) Publish(ev models.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.log.Warn("event channel full, dropping event", "workspace", ev.Workspace, "topic", ev.Topic)
	}
}

// ClientCount returns the number of clients watching a workspace, or all
// clients for "".
func (h *EventHub) ClientCount(workspace string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if workspace != "" {
		return len(h.clients[workspace])
	}
	n := 0
	for _, ws := range h.clients {
		n += len(ws)
	}
	return n
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if !ok {
				c.closed = true
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.log.Debug("failed to write event", "client", c.ID, "error", err)
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.Conn.Close()
}

// readPump drains the connection so control frames are handled. Clients
// never send anything meaningful.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Debug("unexpected websocket close", "client", c.ID, "error", err)
			}
			return
		}
	}
}
