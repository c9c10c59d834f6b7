package display

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Display 称重结果的显示端
type Display interface {
	Render(text string) error
	Clear() error
}

// LogDisplay 无屏幕部署时把显示内容写入日志
type LogDisplay struct {
	logger *zap.Logger
}

// NewLogDisplay 创建日志显示
func NewLogDisplay(logger *zap.Logger) *LogDisplay {
	return &LogDisplay{logger: logger}
}

// Render 显示文本
func (d *LogDisplay) Render(text string) error {
	d.logger.Info("Display", zap.String("text", text))
	return nil
}

// Clear 清屏
func (d *LogDisplay) Clear() error {
	d.logger.Debug("Display cleared")
	return nil
}

// Publisher MQTT 发布能力
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// DefaultDisplayTopic 远程显示的 MQTT 主题
const DefaultDisplayTopic = "wisefido/scale/display"

// Frame 远程显示的一帧
type Frame struct {
	Text      string `json:"text"`
	UpdatedAt int64  `json:"updated_at"` // Unix 毫秒
}

// MQTTDisplay 以保留消息发布到远程显示端（墙面屏、手机面板等）
type MQTTDisplay struct {
	publisher Publisher
	topic     string
	now       func() time.Time
}

// NewMQTTDisplay 创建远程显示
func NewMQTTDisplay(publisher Publisher, topic string) *MQTTDisplay {
	if topic == "" {
		topic = DefaultDisplayTopic
	}
	return &MQTTDisplay{
		publisher: publisher,
		topic:     topic,
		now:       time.Now,
	}
}

// Render 显示文本
func (d *MQTTDisplay) Render(text string) error {
	return d.publish(text)
}

// Clear 发布空帧
func (d *MQTTDisplay) Clear() error {
	return d.publish("")
}

func (d *MQTTDisplay) publish(text string) error {
	payload, err := json.Marshal(Frame{Text: text, UpdatedAt: d.now().UnixMilli()})
	if err != nil {
		return err
	}
	if err := d.publisher.Publish(d.topic, true, payload); err != nil {
		return fmt.Errorf("failed to publish display frame: %w", err)
	}
	return nil
}

// Multi 同时输出到多个显示端，返回第一个错误
type Multi []Display

// Render 显示文本
func (m Multi) Render(text string) error {
	return m.each(func(d Display) error { return d.Render(text) })
}

// Clear 清屏
func (m Multi) Clear() error {
	return m.each(func(d Display) error { return d.Clear() })
}

func (m Multi) each(fn func(Display) error) error {
	var errs []string
	for _, d := range m {
		if err := fn(d); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("display: %s", strings.Join(errs, "; "))
	}
	return nil
}
