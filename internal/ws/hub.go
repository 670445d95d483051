package ws

import (
	"context"
	"sync"

	"github.com/DLT11-dev/be-chat/internal/metrics"
	"github.com/DLT11-dev/be-chat/internal/models"
	"github.com/DLT11-dev/be-chat/internal/service"
	"github.com/rs/zerolog/log"
)

// MessageStore 是 Hub 处理实时事件时需要的消息存储能力，由 service.MessageService 实现。
type MessageStore interface {
	CreateMessage(ctx context.Context, senderID uint, in service.NewMessage) (*service.MessageDTO, error)
	MarkRead(ctx context.Context, messageID string, userID uint) (*models.Message, error)
	MarkAllRead(ctx context.Context, senderID, receiverID uint) (int64, error)
}

// Hub 持有在线目录与会话房间，负责把事件推送到具体用户的连接。
type Hub struct {
	presence PresenceStore
	store    MessageStore

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub(presence PresenceStore, store MessageStore) *Hub {
	if presence == nil {
		presence = NewMemoryPresence()
	}
	return &Hub{presence: presence, store: store, rooms: make(map[string]map[*Client]struct{})}
}

// Register 让 c 成为该用户的唯一在线连接，旧连接会被关闭。
func (h *Hub) Register(c *Client) {
	prev := h.presence.Set(c.userID, c)
	metrics.WsConnections.Inc()
	if prev != nil && prev != c {
		log.Info().Uint("user_id", c.userID).Msg("ws: connection replaced")
		prev.close()
	}
}

// Unregister 在连接结束时调用：只移除仍指向 c 的在线记录，并退出所有房间。
func (h *Hub) Unregister(c *Client) {
	h.presence.DeleteIf(c.userID, c)
	h.leaveAll(c)
	c.close()
	metrics.WsConnections.Dec()
}

func (h *Hub) IsOnline(userID uint) bool {
	_, ok := h.presence.Get(userID)
	return ok
}

// Online 返回当前在线用户数。
func (h *Hub) Online() int { return h.presence.Len() }

type pushResult string

const (
	pushDelivered pushResult = "delivered"
	pushOffline   pushResult = "offline"
	pushDropped   pushResult = "dropped"
)

func (h *Hub) push(userID uint, event string, data interface{}) pushResult {
	c, ok := h.presence.Get(userID)
	if !ok {
		return pushOffline
	}
	if !c.Emit(event, data) {
		return pushDropped
	}
	return pushDelivered
}

// SendToUser 向用户的在线连接推送一个事件，用户不在线或缓冲区已满时返回 false。
func (h *Hub) SendToUser(userID uint, event string, data interface{}) bool {
	return h.push(userID, event, data) == pushDelivered
}

// room 懒加载房间成员集合，调用方需持有写锁。
func (h *Hub) room(id string) map[*Client]struct{} {
	members := h.rooms[id]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[id] = members
	}
	return members
}

func (h *Hub) addToRoom(id string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.room(id)[c] = struct{}{}
	c.rooms[id] = struct{}{}
}

func (h *Hub) removeFromRoom(id string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id, c)
}

func (h *Hub) removeLocked(id string, c *Client) {
	if members, ok := h.rooms[id]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, id)
		}
	}
	delete(c.rooms, id)
}

func (h *Hub) leaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range c.rooms {
		h.removeLocked(id, c)
	}
}

// RoomMembers 返回房间内的用户 ID，主要用于观测与测试。
func (h *Hub) RoomMembers(id string) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]uint, 0, len(h.rooms[id]))
	for c := range h.rooms[id] {
		out = append(out, c.userID)
	}
	return out
}
