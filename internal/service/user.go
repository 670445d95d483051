package service

import (
	"context"
	"errors"

	"github.com/DLT11-dev/be-chat/internal/auth"
	"github.com/DLT11-dev/be-chat/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SummaryCache 是用户公开信息的可选缓存，未配置 Redis 时为 nil。
type SummaryCache interface {
	GetMany(ctx context.Context, ids []uint) (map[uint]models.UserSummary, error)
	SetMany(ctx context.Context, sums []models.UserSummary) error
	Invalidate(ctx context.Context, id uint) error
}

// UserService 封装用户相关的业务逻辑，供会话与消息模块按 ID/用户名查询用户。
type UserService struct {
	db    *gorm.DB
	cache SummaryCache
}

func NewUserService(db *gorm.DB, cache SummaryCache) *UserService {
	return &UserService{db: db, cache: cache}
}

// Register 注册新用户，email 可为空。
func (s *UserService) Register(ctx context.Context, username, password, email string) (*models.UserSummary, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Username: username, PasswordHash: hash}
	if email != "" {
		user.Email = &email
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	// 用户被删除后 ID 可能被复用，清掉旧的缓存条目。
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, user.ID); err != nil {
			log.Warn().Err(err).Uint("user_id", user.ID).Msg("summary cache invalidate")
		}
	}
	sum := user.Summary()
	return &sum, nil
}

func (s *UserService) FindByID(ctx context.Context, id uint) (*models.User, error) {
	return s.findOne(s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(s.db.WithContext(ctx).Where("username = ?", username))
}

func (s *UserService) findOne(q *gorm.DB) (*models.User, error) {
	var user models.User
	if err := q.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Summaries 批量获取用户公开信息，先查缓存，未命中的再查库并回填。
// 不存在的用户不出现在结果中。
func (s *UserService) Summaries(ctx context.Context, ids []uint) (map[uint]models.UserSummary, error) {
	out := make(map[uint]models.UserSummary, len(ids))
	missing := uniqueIDs(ids)
	if len(missing) == 0 {
		return out, nil
	}

	if s.cache != nil {
		hits, err := s.cache.GetMany(ctx, missing)
		if err != nil {
			log.Warn().Err(err).Msg("summary cache get")
		}
		rest := missing[:0]
		for _, id := range missing {
			if sum, ok := hits[id]; ok {
				out[id] = sum
				continue
			}
			rest = append(rest, id)
		}
		missing = rest
		if len(missing) == 0 {
			return out, nil
		}
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Select("id", "username", "email").Where("id IN ?", missing).Find(&users).Error; err != nil {
		return nil, err
	}
	fresh := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		sum := u.Summary()
		out[u.ID] = sum
		fresh = append(fresh, sum)
	}
	if s.cache != nil {
		if err := s.cache.SetMany(ctx, fresh); err != nil {
			log.Warn().Err(err).Msg("summary cache set")
		}
	}
	return out, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
