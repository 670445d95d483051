package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/DLT11-dev/be-chat/internal/auth"
	"github.com/DLT11-dev/be-chat/internal/models"
)

var ErrMissingToken = errors.New("missing token")

// UserLookup 解析握手 token 对应的用户，由 service.UserService 实现。
type UserLookup interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
}

// Gatekeeper 在 websocket 升级之前认证连接请求。
type Gatekeeper struct {
	tokens auth.AccessValidator
	users  UserLookup
}

func NewGatekeeper(tokens auth.AccessValidator, users UserLookup) *Gatekeeper {
	return &Gatekeeper{tokens: tokens, users: users}
}

// Authenticate 优先读取 query 中的 token，其次是 Authorization 头。
func (g *Gatekeeper) Authenticate(r *http.Request) (*models.User, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	uid, err := g.tokens.ValidateAccess(token)
	if err != nil {
		return nil, err
	}
	user, err := g.users.FindByID(r.Context(), uid)
	if err != nil {
		return nil, fmt.Errorf("resolve token subject: %w", err)
	}
	return user, nil
}
