// Package websocket streams change events to connected clients. Clients
// subscribe to topics, one per table, and receive the changes on those
// topics to rows they are a party to.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthplix/healthplix/internal/platform/auth"
	"github.com/healthplix/healthplix/internal/platform/changefeed"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ClientMessage is an inbound control message from a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is a single WebSocket connection.
type Client struct {
	ID     string
	Email  string
	Topics []string
	Send   chan []byte
}

// Subscription is an in-process listener created by Hub.Listen.
type Subscription struct {
	C      <-chan changefeed.Change
	ch     chan changefeed.Change
	topics []string
	hub    *Hub
	once   sync.Once
}

// Close releases the subscription and closes C. It is safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		for _, topic := range s.topics {
			if listeners, ok := s.hub.listeners[topic]; ok {
				delete(listeners, s)
				if len(listeners) == 0 {
					delete(s.hub.listeners, topic)
				}
			}
		}
		close(s.ch)
	})
}

// Hub tracks clients and in-process listeners by topic. Delivery never
// blocks: a subscriber whose buffer is full misses the event, which is
// acceptable because events only tell subscribers to re-fetch.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[*Client]struct{} // topic -> clients
	all       map[*Client]struct{}
	listeners map[string]map[*Subscription]struct{}
	logger    zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]map[*Client]struct{}),
		all:       make(map[*Client]struct{}),
		listeners: make(map[string]map[*Subscription]struct{}),
		logger:    logger,
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

// Unregister removes a client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	have := make(map[string]struct{}, len(client.Topics))
	for _, t := range client.Topics {
		have[t] = struct{}{}
	}
	for _, topic := range topics {
		if _, dup := have[topic]; dup || topic == "" {
			continue
		}
		have[topic] = struct{}{}
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
		client.Topics = append(client.Topics, topic)
	}
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		removeSet[topic] = struct{}{}
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage dispatches a subscribe or unsubscribe request.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Listen subscribes an in-process consumer to topics. The caller must Close
// the returned subscription.
func (h *Hub) Listen(buffer int, topics ...string) *Subscription {
	if buffer <= 0 {
		buffer = sendBuffer
	}
	ch := make(chan changefeed.Change, buffer)
	sub := &Subscription{C: ch, ch: ch, topics: topics, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		if h.listeners[topic] == nil {
			h.listeners[topic] = make(map[*Subscription]struct{})
		}
		h.listeners[topic][sub] = struct{}{}
	}
	return sub
}

// Broadcast delivers change to the subscribers of topic. A connected
// client only receives rows it is the patient or doctor on; in-process
// listeners receive every change.
func (h *Hub) Broadcast(topic string, change changefeed.Change) {
	data, err := json.Marshal(change)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("marshal change")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for client := range h.clients[topic] {
		if !change.Involves(client.Email) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			dropped++
		}
	}
	for sub := range h.listeners[topic] {
		select {
		case sub.ch <- change:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn().Str("topic", topic).Int("dropped", dropped).Msg("slow subscribers missed a change")
	}
}

// Publish broadcasts change on its table's topic.
func (h *Hub) Publish(_ context.Context, change changefeed.Change) error {
	h.Broadcast(change.Table, change)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients and listeners on topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic]) + len(h.listeners[topic])
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers are limited by CORS on the API itself; mobile clients send no
	// Origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated requests to a change stream.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// ParseTables splits the comma separated tables query parameter.
func ParseTables(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HandleConnect upgrades the connection, subscribes it to ?tables=a,b and
// starts the read and write pumps. The client's subscriptions are released
// when the connection closes.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	if !gorillawebsocket.IsWebSocketUpgrade(c.Request()) {
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade required")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		return nil
	}

	client := &Client{
		ID:     uuid.NewString(),
		Email:  auth.EmailFromContext(c.Request().Context()),
		Topics: ParseTables(c.QueryParam("tables")),
		Send:   make(chan []byte, sendBuffer),
	}
	wsh.hub.Register(client)
	wsh.hub.logger.Debug().
		Str("client_id", client.ID).
		Str("user", client.Email).
		Strs("topics", client.Topics).
		Msg("change stream connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
		wsh.hub.logger.Debug().Str("client_id", client.ID).Msg("change stream closed")
	}()

	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
