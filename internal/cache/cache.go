package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/DLT11-dev/be-chat/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	prefixUserSummary = "user:summary:"
	TTLUserSummary    = 10 * time.Minute
)

// NewRedisClient 创建 Redis 客户端并 Ping 一次确认可用。
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// SummaryCache 缓存用户公开信息，减少消息富化时的用户查询。
type SummaryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSummaryCache(rdb *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = TTLUserSummary
	}
	return &SummaryCache{rdb: rdb, ttl: ttl}
}

func summaryKey(id uint) string {
	return prefixUserSummary + strconv.FormatUint(uint64(id), 10)
}

// GetMany 返回命中的条目；未命中的 ID 不出现在结果中。
func (c *SummaryCache) GetMany(ctx context.Context, ids []uint) (map[uint]models.UserSummary, error) {
	out := make(map[uint]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = summaryKey(id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var sum models.UserSummary
		if err := json.Unmarshal([]byte(s), &sum); err == nil && sum.ID != 0 {
			out[sum.ID] = sum
		}
	}
	return out, nil
}

func (c *SummaryCache) SetMany(ctx context.Context, sums []models.UserSummary) error {
	if len(sums) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for _, s := range sums {
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		pipe.Set(ctx, summaryKey(s.ID), b, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *SummaryCache) Invalidate(ctx context.Context, id uint) error {
	err := c.rdb.Del(ctx, summaryKey(id)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (c *SummaryCache) Close() error { return c.rdb.Close() }
