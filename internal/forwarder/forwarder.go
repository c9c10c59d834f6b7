package forwarder

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrForward 上报失败（只记录日志，不影响持久化）
var ErrForward = errors.New("forward error")

// Forwarder 上报一次晨重
type Forwarder interface {
	LogWeight(ctx context.Context, user string, weightKg float64) error
}

// WeightEvent 发布到消息通道的晨重事件
type WeightEvent struct {
	User       string  `json:"user"`
	WeightKg   float64 `json:"weight_kg"`
	MeasuredAt int64   `json:"measured_at"` // Unix 毫秒
}

func newWeightEvent(user string, weightKg float64, at time.Time) WeightEvent {
	return WeightEvent{
		User:       user,
		WeightKg:   weightKg,
		MeasuredAt: at.UnixMilli(),
	}
}

// Multi 依次调用所有上报通道，某一通道失败不影响其他通道
type Multi []Forwarder

// LogWeight 返回所有失败的合并错误
func (m Multi) LogWeight(ctx context.Context, user string, weightKg float64) error {
	var errs []error
	for _, f := range m {
		if err := f.LogWeight(ctx, user, weightKg); err != nil {
			if !errors.Is(err, ErrForward) {
				err = fmt.Errorf("%w: %v", ErrForward, err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
