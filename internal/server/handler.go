package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/DLT11-dev/be-chat/internal/auth"
	"github.com/DLT11-dev/be-chat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Notifier 把 HTTP 入口产生的变化推送到实时连接，由 ws.Hub 实现。
type Notifier interface {
	Deliver(msg *service.MessageDTO) bool
	NotifyRead(senderID uint, messageID string)
}

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	users    *service.UserService
	sessions *service.SessionService
	messages *service.MessageService
	notifier Notifier
}

func NewHandler(users *service.UserService, sessions *service.SessionService, messages *service.MessageService, notifier Notifier) *Handler {
	return &Handler{users: users, sessions: sessions, messages: messages, notifier: notifier}
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	sum, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		respondError(c, err, "register")
		return
	}
	c.JSON(http.StatusCreated, sum)
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	pair, err := h.sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err, "login")
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh 用旧的 refresh token 换取新的 token 对，旧 token 随即失效。
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	pair, err := h.sessions.RotateRefresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		respondError(c, err, "refresh")
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *Handler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, err, "logout")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// LogoutAll 吊销当前用户的全部 refresh token。
func (h *Handler) LogoutAll(c *gin.Context) {
	n, err := h.sessions.RevokeAll(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "logout all")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "revoked": n})
}

// SendMessage 保存消息并尝试实时推送给接收者。
func (h *Handler) SendMessage(c *gin.Context) {
	var req service.NewMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	uid := auth.GetUserID(c)
	if err := service.ValidateNewMessage(uid, &req); err != nil {
		respondError(c, err, "send message")
		return
	}
	msg, err := h.messages.CreateMessage(c.Request.Context(), uid, req)
	if err != nil {
		respondError(c, err, "send message")
		return
	}
	h.notifier.Deliver(msg)
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) Unread(c *gin.Context) {
	msgs, err := h.messages.UnreadFor(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list unread")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkRead 只有接收者能标记，成功后通知在线的发送者。
func (h *Handler) MarkRead(c *gin.Context) {
	msg, err := h.messages.MarkRead(c.Request.Context(), c.Param("id"), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "mark read")
		return
	}
	h.notifier.NotifyRead(msg.SenderID, msg.ID)
	c.JSON(http.StatusOK, gin.H{"id": msg.ID, "isRead": msg.IsRead})
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.messages.DeleteMessage(c.Request.Context(), c.Param("id"), auth.GetUserID(c)); err != nil {
		respondError(c, err, "delete message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) Conversations(c *gin.Context) {
	convs, err := h.messages.RecentConversations(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// ConversationMessages 分页返回与对方的消息，按时间倒序。
func (h *Handler) ConversationMessages(c *gin.Context) {
	other, ok := otherUserID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultPageSize)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	msgs, err := h.messages.MessagesBetween(c.Request.Context(), auth.GetUserID(c), other, limit, offset)
	if err != nil {
		respondError(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkConversationRead 把对方发给当前用户的未读消息全部标记为已读。
func (h *Handler) MarkConversationRead(c *gin.Context) {
	other, ok := otherUserID(c)
	if !ok {
		return
	}
	n, err := h.messages.MarkAllRead(c.Request.Context(), other, auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "mark conversation read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func otherUserID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("otherUserId"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return uint(id), true
}
