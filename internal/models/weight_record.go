package models

import "time"

// UnknownUser 无法识别用户时使用的通用身份
const UnknownUser = "User"

// WeightRecord 一次称重记录
// 持久化后只有 Last 会被改写（新的晨重记录产生时把旧记录置为 false）
type WeightRecord struct {
	ID        string    `json:"id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Day       int       `json:"day"`
	Hour      int       `json:"hour"`
	W         float64   `json:"w"`
	User      string    `json:"user"`
	Morning   bool      `json:"morning"`
	Last      bool      `json:"last"`
	CreatedAt time.Time `json:"created_at"`
}

// NewWeightRecord 根据测量时间构建记录（日期取本地时区）
func NewWeightRecord(w float64, at time.Time) *WeightRecord {
	return &WeightRecord{
		Year:      at.Year(),
		Month:     int(at.Month()),
		Day:       at.Day(),
		Hour:      at.Hour(),
		W:         w,
		CreatedAt: at,
	}
}

// Date 返回记录日期（UTC 零点，仅用于日期比较）
func (r *WeightRecord) Date() time.Time {
	return time.Date(r.Year, time.Month(r.Month), r.Day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween 两条记录之间相差的天数（绝对值）
func DaysBetween(a, b *WeightRecord) int {
	d := a.Date().Sub(b.Date())
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
