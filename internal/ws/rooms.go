package ws

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidPeer = errors.New("otherUserId is required")

// RoomID 生成一对用户共享的会话房间名，与参数顺序无关。
func RoomID(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("conversation_%d_%d", a, b)
}

// Join 先把对方发来的未读消息全部标记为已读，成功后才进入会话房间。
func (h *Hub) Join(ctx context.Context, c *Client, other uint) error {
	if other == 0 {
		return ErrInvalidPeer
	}
	if _, err := h.store.MarkAllRead(ctx, other, c.userID); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	id := RoomID(c.userID, other)
	h.addToRoom(id, c)
	c.Emit(EventJoinedConversation, RoomEvent{RoomID: id, OtherUserID: other})
	return nil
}

func (h *Hub) Leave(c *Client, other uint) error {
	if other == 0 {
		return ErrInvalidPeer
	}
	id := RoomID(c.userID, other)
	h.removeFromRoom(id, c)
	c.Emit(EventLeftConversation, RoomEvent{RoomID: id, OtherUserID: other})
	return nil
}
