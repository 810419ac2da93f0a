package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Topics a page can subscribe to. They match Message.Entity.
const (
	TopicMember = "member"
	TopicPhoto  = "photo"
	TopicBackup = "backup"
)

// Message tells open pages that a member or photo changed so they can
// refetch. Data optionally carries the changed record.
type Message struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// NewMessage builds a Message whose Type is "<entity>_<action>".
func NewMessage(entity, action, id string, data any) Message {
	return Message{
		Type:   entity + "_" + action,
		Entity: entity,
		Action: action,
		ID:     id,
		Data:   data,
	}
}

// Hub fans change notifications out to the connected pages. A page whose
// buffer is full misses the message instead of stalling the request that
// caused it.
type Hub struct {
	mu     sync.RWMutex
	pages  map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		pages:  make(map[*Client]struct{}),
		logger: logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pages[c] = struct{}{}
}

// Unregister drops c and closes its send channel. Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.pages[c]; !ok {
		return
	}
	delete(h.pages, c)
	close(c.send)
}

// Broadcast delivers msg to every page subscribed to msg.Entity.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	missed := 0
	for c := range h.pages {
		if !c.subscribed(msg.Entity) {
			continue
		}
		select {
		case c.send <- data:
		default:
			missed++
		}
	}
	if missed > 0 {
		h.logger.Debug("slow pages missed broadcast", "type", msg.Type, "pages", missed)
	}
}

// ClientCount reports how many pages are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pages)
}
