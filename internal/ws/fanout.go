package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DLT11-dev/be-chat/internal/metrics"
	"github.com/DLT11-dev/be-chat/internal/service"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadPayload   = errors.New("malformed payload")
)

// Dispatch 处理一个入站事件，失败时只向当前连接回一个 error 事件。
func (h *Hub) Dispatch(ctx context.Context, c *Client, in InboundEvent) {
	if err := h.handle(ctx, c, in); err != nil {
		c.Emit(EventError, ErrorEvent{Message: publicMessage(in.Event, err)})
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, in InboundEvent) error {
	switch in.Event {
	case EventSendMessage:
		var p service.NewMessage
		if err := decode(in.Data, &p); err != nil {
			return err
		}
		return h.SendMessage(ctx, c, p)
	case EventJoinConversation, EventLeaveConversation:
		var p conversationPayload
		if err := decode(in.Data, &p); err != nil {
			return err
		}
		if in.Event == EventJoinConversation {
			return h.Join(ctx, c, p.OtherUserID)
		}
		return h.Leave(c, p.OtherUserID)
	case EventTypingStart, EventTypingStop:
		var p typingPayload
		if err := decode(in.Data, &p); err != nil {
			return err
		}
		if p.ReceiverID == 0 {
			return fmt.Errorf("%w: receiverId is required", ErrBadPayload)
		}
		out := EventUserTyping
		if in.Event == EventTypingStop {
			out = EventUserStoppedTyping
		}
		h.relay(p.ReceiverID, out, TypingEvent{UserID: c.userID, Username: c.uname})
		return nil
	case EventMarkAsRead:
		var p markReadPayload
		if err := decode(in.Data, &p); err != nil {
			return err
		}
		return h.MarkAsRead(ctx, c, p.MessageID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, in.Event)
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return ErrBadPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// publicMessage 只把调用方可处理的错误原样返回，其余记录日志后统一为 internal error。
func publicMessage(event string, err error) string {
	switch {
	case errors.Is(err, ErrUnknownEvent), errors.Is(err, ErrBadPayload), errors.Is(err, ErrInvalidPeer),
		errors.Is(err, service.ErrInvalidMessage), errors.Is(err, service.ErrReceiverNotFound),
		errors.Is(err, service.ErrMessageNotFound):
		return err.Error()
	}
	log.Error().Err(err).Str("event", event).Msg("ws: event failed")
	return "internal error"
}

// SendMessage 先持久化，再推送给在线的接收者，最后只向发起连接确认。
func (h *Hub) SendMessage(ctx context.Context, c *Client, in service.NewMessage) error {
	if err := service.ValidateNewMessage(c.userID, &in); err != nil {
		return err
	}
	msg, err := h.store.CreateMessage(ctx, c.userID, in)
	if err != nil {
		return err
	}
	metrics.WsMessagesTotal.Inc()
	h.Deliver(msg)
	c.Emit(EventMessageSent, msg)
	return nil
}

// Deliver 把已保存的消息作为 new_message 推给接收者；接收者不在线时只计数。
// HTTP 发送接口也通过它保持两条通道一致。
func (h *Hub) Deliver(msg *service.MessageDTO) bool {
	res := h.push(msg.ReceiverID, EventNewMessage, msg)
	metrics.WsDeliveriesTotal.WithLabelValues(string(res)).Inc()
	return res == pushDelivered
}

// MarkAsRead 标记单条消息已读，回执给调用方，并在发送者在线时转发同一事件。
func (h *Hub) MarkAsRead(ctx context.Context, c *Client, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("%w: messageId is required", ErrBadPayload)
	}
	msg, err := h.store.MarkRead(ctx, messageID, c.userID)
	if err != nil {
		return err
	}
	c.Emit(EventMessageMarkedRead, MarkedReadEvent{MessageID: msg.ID})
	h.NotifyRead(msg.SenderID, msg.ID)
	return nil
}

// NotifyRead 在发送者在线时通知其消息已被读取。
func (h *Hub) NotifyRead(senderID uint, messageID string) {
	h.relay(senderID, EventMessageMarkedRead, MarkedReadEvent{MessageID: messageID})
}

// relay 发送不落库的信号，目标不在线时直接丢弃。
func (h *Hub) relay(to uint, event string, data interface{}) {
	if h.push(to, event, data) != pushDelivered {
		metrics.WsSignalsDropped.Inc()
	}
}
