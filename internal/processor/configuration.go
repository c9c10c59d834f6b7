package processor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// HourRange 闭区间 [From, To]，单位小时
type HourRange struct {
	From int
	To   int
}

// Contains 是否在区间内（包含两端）
func (r HourRange) Contains(hour int) bool {
	return r.From <= hour && hour <= r.To
}

func (r HourRange) String() string {
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// ParseHourRange 解析 "5-11" 形式的小时区间，空串表示不限制
func ParseHourRange(s string) (*HourRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return nil, fmt.Errorf("invalid hour range %q, want from-to", s)
	}
	f, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return nil, fmt.Errorf("invalid hour range %q: %w", s, err)
	}
	t, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return nil, fmt.Errorf("invalid hour range %q: %w", s, err)
	}
	r := &HourRange{From: f, To: t}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r HourRange) validate() error {
	if r.From < 0 || r.To > 23 || r.From > r.To {
		return fmt.Errorf("invalid hour range %s", r)
	}
	return nil
}

// Configuration 分类参数，启动时构造，之后只读
type Configuration struct {
	MaxPauseForMorningChecksDays int
	MaxMorningWeightDiff         float64
	MaxWeightDiffToDefineUser    float64
	MorningHours                 *HourRange // nil 表示不限制
}

// DefaultConfiguration 默认分类参数
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxPauseForMorningChecksDays: 5,
		MaxMorningWeightDiff:         2,
		MaxWeightDiffToDefineUser:    2,
	}
}

// Validate 检查参数
func (c Configuration) Validate() error {
	if c.MaxPauseForMorningChecksDays < 0 {
		return errors.New("max pause for morning checks must not be negative")
	}
	if c.MaxMorningWeightDiff < 0 {
		return errors.New("max morning weight diff must not be negative")
	}
	if c.MaxWeightDiffToDefineUser < 0 {
		return errors.New("max weight diff to define user must not be negative")
	}
	if c.MorningHours != nil {
		return c.MorningHours.validate()
	}
	return nil
}

// InMorningHours 当前小时是否允许晨重
func (c Configuration) InMorningHours(hour int) bool {
	return c.MorningHours == nil || c.MorningHours.Contains(hour)
}
