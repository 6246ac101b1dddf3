package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPubSubChannel = "chat:events"

// Event types pushed to connected clients
const (
	EventMessage        = "message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventSeen           = "seen"
)

// Event represents a real-time chat event sent via WebSocket
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub manages WebSocket clients and delivers chat events to users. With
// Redis configured, events fan out across instances via pub/sub.
type Hub struct {
	// Registered clients grouped by user ID
	clients map[string]map[*Client]bool

	// Register/unregister channels
	register   chan *Client
	unregister chan *Client

	// Delivery to a specific user
	deliver chan *targetedEvent

	mu          sync.RWMutex
	redisClient *redis.Client

	// instanceID tags published messages so the subscriber can drop the
	// ones this instance already delivered locally
	instanceID string

	ctx    context.Context
	cancel context.CancelFunc
}

type targetedEvent struct {
	UserID string
	Event  *Event
}

// NewHub creates a new Hub
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		deliver:     make(chan *targetedEvent, 256),
		redisClient: redisClient,
		instanceID:  uuid.New().String(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	// Start Redis subscriber if Redis is available
	if h.redisClient != nil {
		go h.subscribeRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.userID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.userID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.deliver:
			h.mu.RLock()
			if clients, ok := h.clients[msg.UserID]; ok {
				data, err := json.Marshal(msg.Event)
				if err == nil {
					for client := range clients {
						select {
						case client.send <- data:
						default:
							close(client.send)
							delete(clients, client)
						}
					}
				}
			}
			h.mu.RUnlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// SendToUser sends an event to a specific user (local + Redis publish)
func (h *Hub) SendToUser(userID string, event *Event) {
	// Local delivery
	h.deliver <- &targetedEvent{UserID: userID, Event: event}

	// Publish to Redis for multi-instance support
	if h.redisClient != nil {
		msg := &redisMessage{InstanceID: h.instanceID, UserID: userID, Event: event}
		data, err := json.Marshal(msg)
		if err == nil {
			h.redisClient.Publish(h.ctx, redisPubSubChannel, data) //nolint:errcheck
		}
	}
}

type redisMessage struct {
	InstanceID string `json:"instance_id"`
	UserID     string `json:"user_id"`
	Event      *Event `json:"event"`
}

// subscribeRedis listens for chat events from other instances
func (h *Hub) subscribeRedis() {
	pubsub := h.redisClient.Subscribe(h.ctx, redisPubSubChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRedisPayload([]byte(msg.Payload))
		case <-h.ctx.Done():
			return
		}
	}
}

// handleRedisPayload delivers a pub/sub message to local clients. Messages
// this instance published are skipped; SendToUser already delivered those.
func (h *Hub) handleRedisPayload(payload []byte) {
	var rm redisMessage
	if err := json.Unmarshal(payload, &rm); err != nil {
		return
	}
	if rm.InstanceID == h.instanceID {
		return
	}
	h.deliver <- &targetedEvent{UserID: rm.UserID, Event: rm.Event}
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.cancel()
}
