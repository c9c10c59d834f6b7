package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultRosterKey 名单体重缓存的 Redis hash
const DefaultRosterKey = "scale:roster"

// RosterCache 用 Redis hash 保存每个用户最近的体重（field=用户名，value=kg）
type RosterCache struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRosterCache 创建名单缓存
func NewRosterCache(client *redis.Client, key string, logger *zap.Logger) *RosterCache {
	if key == "" {
		key = DefaultRosterKey
	}
	return &RosterCache{
		client: client,
		key:    key,
		logger: logger,
	}
}

// Load 读取全部缓存体重，无法解析的值跳过
func (c *RosterCache) Load(ctx context.Context) (map[string]float64, error) {
	values, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read roster cache: %w", err)
	}

	weights := make(map[string]float64, len(values))
	for user, raw := range values {
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.logger.Warn("Skipping invalid cached weight",
				zap.String("user", user),
				zap.String("value", raw),
			)
			continue
		}
		weights[user] = w
	}
	return weights, nil
}

// Store 写入某个用户的体重
func (c *RosterCache) Store(ctx context.Context, user string, weightKg float64) error {
	value := strconv.FormatFloat(weightKg, 'f', -1, 64)
	if err := c.client.HSet(ctx, c.key, user, value).Err(); err != nil {
		return fmt.Errorf("failed to update roster cache: %w", err)
	}
	return nil
}
