package ws

import (
	"encoding/json"
	"sync"
)

// TopicOrders carries order lifecycle events to the staff dashboard.
const TopicOrders = "orders"

// Event represents a WebSocket message to be broadcast.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// topicEvent routes an event to one topic's subscribers.
type topicEvent struct {
	Topic string
	Event Event
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	// Registered clients by topic
	topics map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *topicEvent

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *topicEvent, 256),
	}
}

// Run starts the hub's main loop.
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.topics[client.topic] == nil {
				h.topics[client.topic] = make(map[*Client]bool)
			}
			h.topics[client.topic][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.topics[client.topic]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.topics, client.topic)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.topics[event.Topic]

			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister
					close(client.send)
					delete(h.topics[event.Topic], client)
					if len(h.topics[event.Topic]) == 0 {
						delete(h.topics, event.Topic)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish sends an event to all clients subscribed to a topic.
func (h *Hub) Publish(topic string, event Event) {
	h.broadcast <- &topicEvent{Topic: topic, Event: event}
}
