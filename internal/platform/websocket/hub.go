// Package websocket pushes realtime events to connected users. Each
// connection is subscribed to its owner's topic; services publish to a user
// and every open session of that user receives the event.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	EventAppointmentCreated = "appointment.created"
	EventAppointmentStatus  = "appointment.status"
	EventAppointmentUpdated = "appointment.updated"
	EventMessageCreated     = "message.created"
	EventMessageRead        = "message.read"
)

// Event represents a real-time notification sent to WebSocket clients.
type Event struct {
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Publisher is implemented by Hub and consumed by domain services.
type Publisher interface {
	PublishToUser(userID uuid.UUID, eventType, resourceType, resourceID string, payload any)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishToUser(uuid.UUID, string, string, string, any) {}

func UserTopic(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	UserID uuid.UUID
	Topics []string
	Send   chan []byte
}

func NewClient(userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Topics: []string{UserTopic(userID)},
		Send:   make(chan []byte, sendBuffer),
	}
}

const sendBuffer = 256

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
	now     func() time.Time
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
		now:     time.Now,
	}
}

// Register adds a client to the hub and subscribes it to its topics.
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
// Calling it twice is safe.
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

// Broadcast sends an event to all clients subscribed to the given topic.
// Clients whose buffer is full miss the event rather than block the sender.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("client buffer full, event dropped")
		}
	}
}

// PublishToUser wraps payload in an Event and broadcasts it to every session
// of userID.
func (h *Hub) PublishToUser(userID uuid.UUID, eventType, resourceType, resourceID string, payload any) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			h.logger.Error().Err(err).Str("type", eventType).Msg("marshal event payload")
			return
		}
		data = raw
	}

	topic := UserTopic(userID)
	h.Broadcast(topic, Event{
		Type:         eventType,
		Topic:        topic,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    h.now().UTC(),
		Data:         data,
	})
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to a specific topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// CloseAll disconnects every client. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.all))
	for c := range h.all {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
