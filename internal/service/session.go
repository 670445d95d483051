package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DLT11-dev/be-chat/internal/auth"
	"github.com/DLT11-dev/be-chat/internal/metrics"
	"github.com/DLT11-dev/be-chat/internal/models"

	"gorm.io/gorm"
)

// TokenPair 是登录与刷新成功后返回的数据。
type TokenPair struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	User         models.UserSummary `json:"user"`
}

// SessionService 负责签发、校验、轮换与吊销 token 对，并持有 refresh token 的持久化。
type SessionService struct {
	db     *gorm.DB
	tokens *auth.Tokens
	users  *UserService
	now    func() time.Time
}

func NewSessionService(db *gorm.DB, tokens *auth.Tokens, users *UserService) *SessionService {
	return &SessionService{db: db, tokens: tokens, users: users, now: time.Now}
}

// Login 校验用户名密码并签发 token 对。
func (s *SessionService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.IssuePair(ctx, user)
}

func (s *SessionService) IssuePair(ctx context.Context, user *models.User) (*TokenPair, error) {
	return s.issuePair(s.db.WithContext(ctx), user)
}

func (s *SessionService) issuePair(tx *gorm.DB, user *models.User) (*TokenPair, error) {
	at, _, err := s.tokens.Sign(user.ID, auth.KindAccess)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	rt, exp, err := s.tokens.Sign(user.ID, auth.KindRefresh)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	row := models.RefreshToken{Token: rt, UserID: user.ID, ExpiresAt: exp}
	if err := tx.Omit("User").Create(&row).Error; err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}
	return &TokenPair{AccessToken: at, RefreshToken: rt, User: user.Summary()}, nil
}

// ValidateAccess 只接受 access 类型的 token，返回其中的用户 ID。
func (s *SessionService) ValidateAccess(token string) (uint, error) {
	claims, err := s.tokens.ParseKind(token, auth.KindAccess)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

// RotateRefresh 使用一次即作废：吊销旧 token 与写入新 token 在同一事务内完成。
func (s *SessionService) RotateRefresh(ctx context.Context, oldToken string) (*TokenPair, error) {
	pair, err := s.rotate(ctx, oldToken)
	if err != nil {
		metrics.RefreshRotationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.RefreshRotationsTotal.WithLabelValues("rotated").Inc()
	return pair, nil
}

func (s *SessionService) rotate(ctx context.Context, oldToken string) (*TokenPair, error) {
	rec, err := s.findValid(ctx, oldToken)
	if err != nil {
		return nil, err
	}
	claims, err := s.tokens.ParseKind(oldToken, auth.KindRefresh)
	if err != nil {
		return nil, err
	}
	if claims.UserID != rec.UserID {
		return nil, ErrInvalidOrRevokedToken
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND is_revoked = ?", rec.ID, false).
			Update("is_revoked", true)
		if res.Error != nil {
			return res.Error
		}
		// 并发兑换同一个 token 时只有一方能更新成功。
		if res.RowsAffected == 0 {
			return ErrInvalidOrRevokedToken
		}
		var err error
		pair, err = s.issuePair(tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *SessionService) findValid(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rec models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("token = ? AND is_revoked = ? AND expires_at > ?", token, false, s.now()).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidOrRevokedToken
		}
		return nil, err
	}
	return &rec, nil
}

// IsRefreshValid 判断 refresh token 是否存在、未吊销且未过期。
func (s *SessionService) IsRefreshValid(ctx context.Context, token string) (bool, error) {
	_, err := s.findValid(ctx, token)
	if errors.Is(err, ErrInvalidOrRevokedToken) {
		return false, nil
	}
	return err == nil, err
}

// Revoke 幂等：token 不存在或已吊销时什么也不做。
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ? AND is_revoked = ?", token, false).
		Update("is_revoked", true).Error
}

// RevokeAll 吊销用户的全部 refresh token，用于“退出所有设备”。
func (s *SessionService) RevokeAll(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true)
	return res.RowsAffected, res.Error
}

// PurgeExpired 删除已过期的 refresh token，由外部定时调用。
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}
