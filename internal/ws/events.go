package ws

import "encoding/json"

// 客户端 → 服务端
const (
	EventSendMessage       = "send_message"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkAsRead        = "mark_as_read"
)

// 服务端 → 客户端
const (
	EventNewMessage         = "new_message"
	EventMessageSent        = "message_sent"
	EventError              = "error"
	EventJoinedConversation = "joined_conversation"
	EventLeftConversation   = "left_conversation"
	EventUserTyping         = "user_typing"
	EventUserStoppedTyping  = "user_stopped_typing"
	EventMessageMarkedRead  = "message_marked_read"
)

// InboundEvent 是客户端发来的帧：{"event": "...", "data": {...}}。
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type OutboundEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type conversationPayload struct {
	OtherUserID uint `json:"otherUserId"`
}

type typingPayload struct {
	ReceiverID uint `json:"receiverId"`
}

type markReadPayload struct {
	MessageID string `json:"messageId"`
}

type RoomEvent struct {
	RoomID      string `json:"roomId"`
	OtherUserID uint   `json:"otherUserId"`
}

type TypingEvent struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
}

type MarkedReadEvent struct {
	MessageID string `json:"messageId"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(OutboundEvent{Event: event, Data: data})
}
