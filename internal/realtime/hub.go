package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Rooms. Every client joins RoomAll; staff join RoomAdmin, customers their company room.
const (
	RoomAll   = "all"
	RoomAdmin = "admin"
)

// CompanyRoom returns the room of a company's members.
func CompanyRoom(companyID uuid.UUID) string {
	return "company:" + companyID.String()
}

// Hub maintains room -> set of connections and broadcasts list-refresh events.
// Uses Redis pub/sub for horizontal scaling: events go to Redis and every
// instance (this one included) delivers them to its local clients.
type Hub struct {
	// room -> map[clientID]*Client
	rooms    map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per room
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishRoomEvent(room, event string, payload []byte) error
}

// RedisSubscriber subscribes to room channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeRoom(room string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to its rooms. Starts the Redis subscription for a room on its first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	for _, room := range c.Rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[string]*Client)
			if h.redisSub != nil {
				room := room
				cancel, err := h.redisSub.SubscribeRoom(room, func(event string, payload []byte) {
					h.Broadcast(room, event, json.RawMessage(payload))
				})
				if err == nil {
					h.subs[room] = cancel
				} else {
					h.logger.Warn("redis subscribe failed", zap.String("room", room), zap.Error(err))
				}
			}
		}
		h.rooms[room][c.ID] = c
	}
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.Strings("rooms", c.Rooms))
}

// Unregister removes a client from its rooms. Cancels a room's Redis subscription when its last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	for _, room := range c.Rooms {
		m, ok := h.rooms[room]
		if !ok {
			continue
		}
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, room)
			if cancel, ok := h.subs[room]; ok {
				cancel()
				delete(h.subs, room)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
}

// Broadcast sends a message to all clients in a room (local only).
func (h *Hub) Broadcast(room, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Notify delivers an event to a room on every instance. With Redis configured
// it only publishes, and the subscription performs the local broadcast once;
// without Redis it broadcasts locally.
func (h *Hub) Notify(room, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	if h.redis != nil {
		err := h.redis.PublishRoomEvent(room, event, data)
		if err == nil {
			return
		}
		h.logger.Warn("redis publish failed, delivering locally", zap.String("room", room), zap.Error(err))
	}
	h.Broadcast(room, event, json.RawMessage(data))
}

// ClientCount returns the number of connected clients in a room.
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
