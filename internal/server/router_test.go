package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DLT11-dev/be-chat/internal/auth"
	"github.com/DLT11-dev/be-chat/internal/config"
	"github.com/DLT11-dev/be-chat/internal/db"
	"github.com/DLT11-dev/be-chat/internal/service"
	"github.com/DLT11-dev/be-chat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	id      uint
	access  string
	refresh string
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb, err := db.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	tokens, err := auth.NewTokensFromLifetimes("router-secret", "15m", "7d")
	require.NoError(t, err)
	users := service.NewUserService(gdb, nil)
	sessions := service.NewSessionService(gdb, tokens, users)
	messages := service.NewMessageService(gdb, users)
	cfg := config.Config{Port: "0", Env: "test", JWTSecret: "router-secret"}
	r, rl := SetupRouter(cfg, Deps{
		Users:    users,
		Sessions: sessions,
		Messages: messages,
		Hub:      ws.NewHub(nil, messages),
	})
	assert.Nil(t, rl, "rate limiting is off when RATE_LIMIT_RPS is unset")
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func signup(t *testing.T, r *gin.Engine, name string) session {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": name, "password": "password"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": name, "password": "password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pair service.TokenPair
	decode(t, w, &pair)
	return session{id: pair.User.ID, access: pair.AccessToken, refresh: pair.RefreshToken}
}

func TestHealthz(t *testing.T) {
	r := setupRouter(t)
	w := do(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","online":0}`, w.Body.String())
}

func TestSetupRouter_RateLimiterIsStoppable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gdb, err := db.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	users := service.NewUserService(gdb, nil)
	sessions := service.NewSessionService(gdb, auth.NewTokens("router-secret", time.Minute, time.Hour), users)
	messages := service.NewMessageService(gdb, users)

	cfg := config.Config{Port: "0", Env: "test", JWTSecret: "router-secret", RateLimitRPS: 1, RateLimitBurst: 1}
	r, rl := SetupRouter(cfg, Deps{Users: users, Sessions: sessions, Messages: messages, Hub: ws.NewHub(nil, messages)})
	require.NotNil(t, rl)
	defer rl.Stop()

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, r, http.MethodGet, "/healthz", "", nil).Code)

	assert.NotPanics(t, func() {
		rl.Stop()
		rl.Stop()
	})
}

func TestAuthFlow(t *testing.T) {
	r := setupRouter(t)
	alice := signup(t, r, "alice")

	w := do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "alice", "password": "password"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": alice.refresh})
	require.Equal(t, http.StatusOK, w.Code)
	var rotated service.TokenPair
	decode(t, w, &rotated)
	assert.NotEqual(t, alice.refresh, rotated.RefreshToken)
	assert.Equal(t, "alice", rotated.User.Username)

	// 同一个 refresh token 不能用两次。
	w = do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": alice.refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/auth/logout", "", gin.H{"refresh_token": rotated.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutAll(t *testing.T) {
	r := setupRouter(t)
	alice := signup(t, r, "alice")

	w := do(t, r, http.MethodPost, "/api/v1/auth/logout-all", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/auth/logout-all", alice.access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct{ Revoked int64 }
	decode(t, w, &out)
	assert.Equal(t, int64(1), out.Revoked)

	w = do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": alice.refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRejectRefreshToken(t *testing.T) {
	r := setupRouter(t)
	alice := signup(t, r, "alice")

	w := do(t, r, http.MethodGet, "/api/v1/conversations", alice.refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, r, http.MethodGet, "/api/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMessagesFlow(t *testing.T) {
	r := setupRouter(t)
	alice := signup(t, r, "alice")
	bob := signup(t, r, "bob")

	w := do(t, r, http.MethodPost, "/api/v1/messages", alice.access, gin.H{"content": "hello", "receiverId": bob.id})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sent service.MessageDTO
	decode(t, w, &sent)
	assert.Equal(t, "hello", sent.Content)
	assert.False(t, sent.IsRead)

	w = do(t, r, http.MethodPost, "/api/v1/messages", alice.access, gin.H{"content": "hello", "receiverId": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodPost, "/api/v1/messages", alice.access, gin.H{"content": "", "receiverId": bob.id})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var unread struct{ Messages []service.MessageDTO }
	w = do(t, r, http.MethodGet, "/api/v1/messages/unread", bob.access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &unread)
	require.Len(t, unread.Messages, 1)
	assert.Equal(t, sent.ID, unread.Messages[0].ID)

	w = do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages?limit=10", alice.id), bob.access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var between struct{ Messages []service.MessageDTO }
	decode(t, w, &between)
	assert.Len(t, between.Messages, 1)

	var convs struct{ Conversations []service.ConversationSummary }
	w = do(t, r, http.MethodGet, "/api/v1/conversations", bob.access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &convs)
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, alice.id, convs.Conversations[0].OtherUserID)
	assert.Equal(t, int64(1), convs.Conversations[0].UnreadCount)

	w = do(t, r, http.MethodPut, "/api/v1/messages/"+sent.ID+"/read", alice.access, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "only the receiver may mark read")
	w = do(t, r, http.MethodPut, "/api/v1/messages/"+sent.ID+"/read", bob.access, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/messages/unread", bob.access, nil)
	decode(t, w, &unread)
	assert.Empty(t, unread.Messages)
}

func TestMarkConversationRead_UsesCounterpartAsSender(t *testing.T) {
	r := setupRouter(t)
	alice := signup(t, r, "alice")
	bob := signup(t, r, "bob")

	for i := 0; i < 3; i++ {
		w := do(t, r, http.MethodPost, "/api/v1/messages", bob.access, gin.H{"content": "ping", "receiverId": alice.id})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := do(t, r, http.MethodPost, "/api/v1/messages", alice.access, gin.H{"content": "pong", "receiverId": bob.id})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, r, http.MethodPut, fmt.Sprintf("/api/v1/conversations/%d/read", bob.id), alice.access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct{ Updated int64 }
	decode(t, w, &out)
	assert.Equal(t, int64(3), out.Updated)

	var unread struct{ Messages []service.MessageDTO }
	w = do(t, r, http.MethodGet, "/api/v1/messages/unread", alice.access, nil)
	decode(t, w, &unread)
	assert.Empty(t, unread.Messages)

	// 反方向的未读消息不受影响。
	w = do(t, r, http.MethodGet, "/api/v1/messages/unread", bob.access, nil)
	decode(t, w, &unread)
	assert.Len(t, unread.Messages, 1)

	w = do(t, r, http.MethodPut, "/api/v1/conversations/abc/read", alice.access, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteMessage(t *testing.T) {
	r := setupRouter(t)
	alice := signup(t, r, "alice")
	bob := signup(t, r, "bob")

	w := do(t, r, http.MethodPost, "/api/v1/messages", alice.access, gin.H{"content": "oops", "receiverId": bob.id})
	require.Equal(t, http.StatusCreated, w.Code)
	var sent service.MessageDTO
	decode(t, w, &sent)

	w = do(t, r, http.MethodDelete, "/api/v1/messages/"+sent.ID, bob.access, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, r, http.MethodDelete, "/api/v1/messages/missing", alice.access, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, r, http.MethodDelete, "/api/v1/messages/"+sent.ID, alice.access, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodDelete, "/api/v1/messages/"+sent.ID, alice.access, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
