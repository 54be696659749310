package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/middleware"
)

// Channels clients can subscribe to.
const (
	ChannelPlanner       = "planner"       // post lifecycle changes
	ChannelCalendar      = "calendar"      // calendar item changes
	ChannelNotifications = "notifications" // toast-level notices
)

// Hub fans messages out to connected websocket clients. Each client is
// bound to one team at upgrade time and only ever sees that team's
// messages; the binding cannot change for the life of the connection.
type Hub struct {
	mu    sync.RWMutex
	teams map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
}

// Client is one websocket connection with its team binding and channel set.
// The send channel is never closed; done signals writePump to shut down, so
// a late send into a dropped client cannot panic.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	teamID   string
	channels map[string]struct{}
	logger   logging.Logger
}

// Message is the wire shape delivered to clients.
type Message struct {
	Type      string                 `json:"type"`
	Channel   string                 `json:"channel"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	TeamID    string                 `json:"team_id"`
}

// SubscriptionMessage is the only inbound message shape clients may send.
type SubscriptionMessage struct {
	Action   string   `json:"action"`   // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // ["planner", "calendar", "notifications"]
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates an empty hub. Run must be started before clients connect.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		teams:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run owns client registration for the life of the process.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			team := h.teams[client.teamID]
			if team == nil {
				team = make(map[*Client]struct{})
				h.teams[client.teamID] = team
			}
			team[client] = struct{}{}
			h.mu.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": h.clientCount(),
				"team_id":      client.teamID,
			}).Info("Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(client)
			h.mu.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": h.clientCount(),
			}).Info("Client disconnected")
		}
	}
}

// dropLocked removes a client and closes its done channel exactly once.
func (h *Hub) dropLocked(client *Client) {
	team, ok := h.teams[client.teamID]
	if !ok {
		return
	}
	if _, ok := team[client]; !ok {
		return
	}
	delete(team, client)
	if len(team) == 0 {
		delete(h.teams, client.teamID)
	}
	close(client.done)
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, team := range h.teams {
		n += len(team)
	}
	return n
}

// BroadcastToTeam delivers a message to every subscribed client of one
// team. Clients whose send buffer is full are dropped; a stalled reader
// must not hold up the rest of the team.
func (h *Hub) BroadcastToTeam(teamID, msgType, channel string, data map[string]interface{}) {
	raw, err := json.Marshal(Message{
		Type:      msgType,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TeamID:    teamID,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal team message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.teams[teamID] {
		if _, ok := client.channels[channel]; !ok {
			continue
		}
		select {
		case client.send <- raw:
		default:
			h.dropLocked(client)
		}
	}
}

// GetStats reports client totals per channel for the health endpoint.
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	perChannel := make(map[string]int)
	for _, team := range h.teams {
		for client := range team {
			total++
			for channel := range client.channels {
				perChannel[channel]++
			}
		}
	}
	return map[string]interface{}{
		"total_clients":         total,
		"channel_subscriptions": perChannel,
	}
}

// ServeWS upgrades the request. The team binding comes from the scope
// header (or team_id query for browser clients that cannot set headers).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	teamID := r.Header.Get(middleware.HeaderTeamID)
	if teamID == "" {
		teamID = r.URL.Query().Get("team_id")
	}
	if teamID == "" {
		http.Error(w, "missing team scope", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		teamID:   teamID,
		channels: map[string]struct{}{ChannelNotifications: {}},
		logger:   h.logger,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// readPump consumes subscription messages until the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			return
		}
		var sub SubscriptionMessage
		if err := json.Unmarshal(raw, &sub); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}
		c.handleSubscription(sub)
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings. Queued messages are batched into one frame when possible.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case raw := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(raw)
			for i := len(c.send); i > 0; i-- {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
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

func (c *Client) handleSubscription(msg SubscriptionMessage) {
	// The channel set is only touched from this client's readPump, but the
	// hub reads it during broadcast, so mutate under the hub lock.
	c.hub.mu.Lock()
	switch msg.Action {
	case "subscribe":
		for _, channel := range msg.Channels {
			c.channels[channel] = struct{}{}
		}
	case "unsubscribe":
		for _, channel := range msg.Channels {
			delete(c.channels, channel)
		}
	default:
		c.hub.mu.Unlock()
		return
	}
	current := make([]string, 0, len(c.channels))
	for channel := range c.channels {
		current = append(current, channel)
	}
	c.hub.mu.Unlock()

	c.logger.WithFields(logging.Fields{
		"action":   msg.Action,
		"channels": msg.Channels,
		"team_id":  c.teamID,
	}).Info("Subscription updated")

	c.sendConfirmation(msg.Action+"_confirmed", current)
}

func (c *Client) sendConfirmation(msgType string, channels []string) {
	raw, err := json.Marshal(map[string]interface{}{
		"type":     msgType,
		"channels": channels,
	})
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal confirmation")
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}
