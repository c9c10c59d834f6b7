package aggregator

import (
	"fmt"
	"math"
	"sync"
	"time"

	"wisefido-scale/internal/models"

	"go.uber.org/zap"
)

// Indicator 平衡板指示灯
type Indicator interface {
	SetLight(on bool) (models.SendResult, error)
}

// Renderer 实时显示当前读数
type Renderer interface {
	Render(text string) error
}

// Config 聚合参数，构造后只读
type Config struct {
	StandOnThresholdKg float64       // 总重超过该值视为有人站上
	RenderInterval     time.Duration // 两次刷新显示的最小间隔
	DisplayOffsetKg    float64       // 显示时叠加的修正值
}

// DefaultConfig 默认聚合参数
func DefaultConfig() Config {
	return Config{
		StandOnThresholdKg: 10,
		RenderInterval:     500 * time.Millisecond,
		DisplayOffsetKg:    2,
	}
}

// Episode 一次测量周期的累积状态
type Episode struct {
	Active     bool
	Done       bool
	Samples    []float64 // 保留一位小数
	LastRender time.Time
}

// Aggregator 把称重事件聚合为一次稳定读数
// 实现 board.EventSink
type Aggregator struct {
	cfg       Config
	indicator Indicator
	renderer  Renderer
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	episode Episode
}

// NewAggregator 创建聚合器；indicator 和 renderer 可以为 nil
func NewAggregator(cfg Config, indicator Indicator, renderer Renderer, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		cfg:       cfg,
		indicator: indicator,
		renderer:  renderer,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleEvent 处理一个称重事件，周期结束后的事件忽略
func (a *Aggregator) HandleEvent(ev models.BoardEvent) {
	a.mu.Lock()
	if a.episode.Done {
		a.mu.Unlock()
		return
	}

	if ev.TotalWeight <= a.cfg.StandOnThresholdKg {
		if a.episode.Active {
			a.episode.Done = true
			a.logger.Debug("Measurement finished", zap.Int("samples", len(a.episode.Samples)))
		}
		a.mu.Unlock()
		return
	}

	a.episode.Samples = append(a.episode.Samples, Round1(ev.TotalWeight))
	var text string
	now := a.now()
	if a.episode.LastRender.IsZero() || now.Sub(a.episode.LastRender) >= a.cfg.RenderInterval {
		text = FormatWeight(Mode(a.episode.Samples) + a.cfg.DisplayOffsetKg)
		a.episode.LastRender = now
	}
	started := !a.episode.Active
	a.episode.Active = true
	a.mu.Unlock()

	if text != "" && a.renderer != nil {
		if err := a.renderer.Render(text); err != nil {
			a.logger.Debug("Failed to render weight", zap.Error(err))
		}
	}
	if started {
		a.logger.Debug("Starting measurement", zap.Float64("total_weight", ev.TotalWeight))
		if a.indicator != nil {
			if _, err := a.indicator.SetLight(true); err != nil {
				a.logger.Warn("Failed to switch light on", zap.Error(err))
			}
		}
	}
}

// Done 本周期是否已结束
func (a *Aggregator) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.episode.Done
}

// Weight 本周期的稳定读数（众数），没有样本时为 0
func (a *Aggregator) Weight() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Mode(a.episode.Samples)
}

// Episode 返回当前周期状态的副本
func (a *Aggregator) Episode() Episode {
	a.mu.Lock()
	defer a.mu.Unlock()
	ep := a.episode
	ep.Samples = append([]float64(nil), a.episode.Samples...)
	return ep
}

// Reset 清空周期状态，每次测量前调用
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.episode = Episode{}
	a.mu.Unlock()
}

// Round1 保留一位小数
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// FormatWeight 显示用格式
func FormatWeight(kg float64) string {
	return fmt.Sprintf("%.1f", kg)
}

// Mode 取出现次数最多的值（按一位小数比较），次数相同取最先出现的
func Mode(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	counts := make(map[int64]int, len(samples))
	order := make([]int64, 0, len(samples))
	for _, s := range samples {
		key := int64(math.Round(s * 10))
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	best := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[best] {
			best = key
		}
	}
	return float64(best) / 10
}
