package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DLT11-dev/be-chat/internal/models"

	"gorm.io/gorm"
)

const (
	DefaultPageSize  = 50
	MaxPageSize      = 200
	MaxContentLength = 4000
)

var ErrInvalidMessage = errors.New("invalid message")

// MessageService 封装私信的持久化与已读状态维护。
type MessageService struct {
	db    *gorm.DB
	users *UserService
}

func NewMessageService(db *gorm.DB, users *UserService) *MessageService {
	return &MessageService{db: db, users: users}
}

// NewMessage 是发送消息的输入，Type 为空时视为 text。
type NewMessage struct {
	Content    string             `json:"content"`
	Type       models.MessageType `json:"type,omitempty"`
	ReceiverID uint               `json:"receiverId"`
}

// ValidateNewMessage 是 HTTP 与 websocket 两条入口共用的输入校验，
// 存储层本身不限制发给自己的消息。
func ValidateNewMessage(senderID uint, in *NewMessage) error {
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" || utf8.RuneCountInString(in.Content) > MaxContentLength {
		return fmt.Errorf("%w: content must be 1-%d characters", ErrInvalidMessage, MaxContentLength)
	}
	if len(in.Type) > 32 {
		return fmt.Errorf("%w: type too long", ErrInvalidMessage)
	}
	if in.ReceiverID == 0 {
		return fmt.Errorf("%w: receiverId is required", ErrInvalidMessage)
	}
	if in.ReceiverID == senderID {
		return fmt.Errorf("%w: cannot message yourself", ErrInvalidMessage)
	}
	return nil
}

// MessageDTO 是对外输出的消息数据，HTTP 与 websocket 共用。
type MessageDTO struct {
	ID         string              `json:"id"`
	Content    string              `json:"content"`
	Type       models.MessageType  `json:"type"`
	SenderID   uint                `json:"senderId"`
	ReceiverID uint                `json:"receiverId"`
	IsRead     bool                `json:"isRead"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
	Sender     *models.UserSummary `json:"sender,omitempty"`
	Receiver   *models.UserSummary `json:"receiver,omitempty"`
}

// ConversationSummary 是最近会话列表中的一项。
type ConversationSummary struct {
	OtherUserID   uint                `json:"otherUserId"`
	LastMessageAt time.Time           `json:"lastMessageTime"`
	UnreadCount   int64               `json:"unreadCount"`
	User          *models.UserSummary `json:"user,omitempty"`
}

// CreateMessage 保存一条新消息，接收者不存在时返回 ErrReceiverNotFound。
func (s *MessageService) CreateMessage(ctx context.Context, senderID uint, in NewMessage) (*MessageDTO, error) {
	if _, err := s.users.FindByID(ctx, in.ReceiverID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, err
	}
	msg := models.Message{
		Content:    in.Content,
		Type:       in.Type,
		SenderID:   senderID,
		ReceiverID: in.ReceiverID,
	}
	if err := s.db.WithContext(ctx).Omit("Sender", "Receiver").Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	out, err := s.toDTOs(ctx, []models.Message{msg})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// MessagesBetween 返回两人之间的消息（与参数顺序无关），按时间倒序分页。
// limit 缺省为 DefaultPageSize，超过 MaxPageSize 时截断为 MaxPageSize。
func (s *MessageService) MessagesBetween(ctx context.Context, u1, u2 uint, limit, offset int) ([]MessageDTO, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", u1, u2, u2, u1).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return s.toDTOs(ctx, msgs)
}

// UnreadFor 返回发给 userID 的全部未读消息，按时间正序。
func (s *MessageService) UnreadFor(ctx context.Context, userID uint) ([]MessageDTO, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Order("created_at asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return s.toDTOs(ctx, msgs)
}

// MarkRead 只有接收者可以标记已读，否则视为消息不存在。
func (s *MessageService) MarkRead(ctx context.Context, messageID string, userID uint) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).Where("id = ? AND receiver_id = ?", messageID, userID).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if !msg.IsRead {
		if err := s.db.WithContext(ctx).Model(&msg).Update("is_read", true).Error; err != nil {
			return nil, err
		}
		msg.IsRead = true
	}
	return &msg, nil
}

// MarkAllRead 将 senderID 发给 receiverID 的未读消息全部标记为已读。
// 调用方约定：senderID 是对方，receiverID 是当前用户。
func (s *MessageService) MarkAllRead(ctx context.Context, senderID, receiverID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND is_read = ?", senderID, receiverID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// DeleteMessage 物理删除消息，只有发送者可以删除。
func (s *MessageService) DeleteMessage(ctx context.Context, messageID string, userID uint) error {
	var msg models.Message
	if err := s.db.WithContext(ctx).Where("id = ?", messageID).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if msg.SenderID != userID {
		return ErrNotMessageOwner
	}
	return s.db.WithContext(ctx).Delete(&models.Message{}, "id = ?", msg.ID).Error
}

// RecentConversations 按最近一条消息时间倒序列出会话对象及其未读数。
func (s *MessageService) RecentConversations(ctx context.Context, userID uint) ([]ConversationSummary, error) {
	type row struct {
		SenderID   uint
		ReceiverID uint
		IsRead     bool
		CreatedAt  time.Time
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("sender_id", "receiver_id", "is_read", "created_at").
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at desc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	index := make(map[uint]int)
	out := make([]ConversationSummary, 0)
	for _, r := range rows {
		other := r.SenderID
		if r.SenderID == userID {
			other = r.ReceiverID
		}
		i, ok := index[other]
		if !ok {
			i = len(out)
			index[other] = i
			out = append(out, ConversationSummary{OtherUserID: other, LastMessageAt: r.CreatedAt})
		}
		if r.ReceiverID == userID && r.SenderID == other && !r.IsRead {
			out[i].UnreadCount++
		}
	}

	ids := make([]uint, 0, len(out))
	for _, c := range out {
		ids = append(ids, c.OtherUserID)
	}
	sums, err := s.users.Summaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if sum, ok := sums[out[i].OtherUserID]; ok {
			out[i].User = &sum
		}
	}
	return out, nil
}

func (s *MessageService) toDTOs(ctx context.Context, msgs []models.Message) ([]MessageDTO, error) {
	ids := make([]uint, 0, len(msgs)*2)
	for _, m := range msgs {
		ids = append(ids, m.SenderID, m.ReceiverID)
	}
	sums, err := s.users.Summaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		dto := MessageDTO{
			ID:         m.ID,
			Content:    m.Content,
			Type:       m.Type,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			IsRead:     m.IsRead,
			CreatedAt:  m.CreatedAt,
			UpdatedAt:  m.UpdatedAt,
		}
		if sum, ok := sums[m.SenderID]; ok {
			dto.Sender = &sum
		}
		if sum, ok := sums[m.ReceiverID]; ok {
			dto.Receiver = &sum
		}
		out = append(out, dto)
	}
	return out, nil
}
