package forwarder

import (
	"context"
	"fmt"
	"time"

	commonredis "wisefido-scale/internal/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultWeightStream 晨重事件流
const DefaultWeightStream = "scale:weight:stream"

// StreamForwarder 把晨重事件写入 Redis Stream，供下游服务消费
type StreamForwarder struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
	now    func() time.Time
}

// NewStreamForwarder 创建 Stream 上报；maxLen <= 0 表示不裁剪
func NewStreamForwarder(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamForwarder {
	if stream == "" {
		stream = DefaultWeightStream
	}
	return &StreamForwarder{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
		now:    time.Now,
	}
}

// LogWeight 发布事件
func (s *StreamForwarder) LogWeight(ctx context.Context, user string, weightKg float64) error {
	id, err := commonredis.PublishJSONToStream(ctx, s.client, s.stream, s.maxLen, newWeightEvent(user, weightKg, s.now()))
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", ErrForward, s.stream, err)
	}
	s.logger.Debug("Weight published to stream",
		zap.String("stream", s.stream),
		zap.String("message_id", id),
		zap.String("user", user),
	)
	return nil
}
