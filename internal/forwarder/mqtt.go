package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Publisher MQTT 发布能力（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// DefaultTopicPrefix MQTT 主题前缀
const DefaultTopicPrefix = "wisefido/scale"

// MQTTForwarder 发布保留消息 <prefix>/<user>/weight，供家庭自动化订阅
type MQTTForwarder struct {
	publisher Publisher
	prefix    string
	logger    *zap.Logger
	now       func() time.Time
}

// NewMQTTForwarder 创建 MQTT 上报
func NewMQTTForwarder(publisher Publisher, prefix string, logger *zap.Logger) *MQTTForwarder {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTTForwarder{
		publisher: publisher,
		prefix:    strings.TrimSuffix(prefix, "/"),
		logger:    logger,
		now:       time.Now,
	}
}

// LogWeight 发布事件
func (m *MQTTForwarder) LogWeight(_ context.Context, user string, weightKg float64) error {
	payload, err := json.Marshal(newWeightEvent(user, weightKg, m.now()))
	if err != nil {
		return fmt.Errorf("%w: marshal weight event: %v", ErrForward, err)
	}
	topic := m.topic(user)
	if err := m.publisher.Publish(topic, true, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrForward, err)
	}
	m.logger.Debug("Weight published to MQTT", zap.String("topic", topic))
	return nil
}

func (m *MQTTForwarder) topic(user string) string {
	return m.prefix + "/" + strings.ToLower(user) + "/weight"
}
