package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub tracks connected clients and routes notifications to the
// connections of one actor.
type Hub struct {
	clients      map[*Client]bool
	actorClients map[string][]*Client
	Register     chan *Client
	unregister   chan *Client
	logger       *zap.Logger
	mu           sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		actorClients: make(map[string][]*Client),
		Register:     make(chan *Client),
		unregister:   make(chan *Client),
		logger:       logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.actorClients[client.ActorID] = append(h.actorClients[client.ActorID], client)
			h.mu.Unlock()
			h.logger.Debug("websocket client registered", zap.String("actorId", client.ActorID))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				clients := h.actorClients[client.ActorID]
				for i, c := range clients {
					if c == client {
						h.actorClients[client.ActorID] = append(clients[:i], clients[i+1:]...)
						break
					}
				}
				if len(h.actorClients[client.ActorID]) == 0 {
					delete(h.actorClients, client.ActorID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", zap.String("actorId", client.ActorID))
		}
	}
}

// SendToActor pushes one envelope to every live connection of the actor.
// A disconnected actor is not an error: the board state catches them up
// on the next load.
func (h *Hub) SendToActor(actorID string, payload interface{}, messageType string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	envelope := Envelope{
		Type:      messageType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	messageBytes, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Error("failed to marshal websocket envelope", zap.Error(err))
		return err
	}

	for _, client := range h.actorClients[actorID] {
		select {
		case client.Send <- messageBytes:
		default:
			// Slow consumer; drop rather than block the hub.
		}
	}
	return nil
}
