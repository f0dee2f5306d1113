// Package hub is the in-process broadcast channel between the room
// coordinator and connected clients (SSE streams, websockets).
package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"codeclash/backend/internal/game"
)

// Client is a single subscriber connection: a channel the transport handler
// drains and writes to the wire.
type Client chan []byte

// Hub manages topic subscriptions and fans events out to them. Topics are the
// coordinator's room topics ("games:<id>") and the lobby topic. Delivery is
// best-effort from the hub's side; a slow client simply misses events rather
// than blocking the room.
type Hub struct {
	topics map[string]map[Client]bool
	mu     sync.RWMutex
	log    zerolog.Logger
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[Client]bool),
		log:    logger,
	}
}

// Subscribe adds a client to a topic.
func (h *Hub) Subscribe(topic string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[Client]bool)
	}
	h.topics[topic][client] = true
}

// Unsubscribe removes a client from a topic and closes its channel so the
// transport handler unblocks.
func (h *Hub) Unsubscribe(topic string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client)
	if len(clients) == 0 {
		delete(h.topics, topic)
	}
}

// Publish implements game.Publisher: it serializes the event once and sends
// it to every subscriber of the topic without blocking on any of them.
func (h *Hub) Publish(topic string, event game.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.topics[topic]
	if !ok {
		return
	}
	message, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("topic", topic).Str("type", event.Type).
			Msg("failed to marshal event")
		return
	}

	for client := range clients {
		select {
		case client <- message:
		default:
			// Client buffer full; it is disconnected or too slow. The
			// unsubscribe path cleans it up.
		}
	}
}
