package processor

import (
	"sync"

	"wisefido-scale/internal/models"
)

// Roster 用户及其最近体重
// 保留配置顺序，识别时按顺序取第一个匹配
type Roster struct {
	mu    sync.RWMutex
	order []string
	users map[string]*models.UserProfile
}

// NewRoster 用初始配置创建名单，重名时后者覆盖前者
func NewRoster(profiles []models.UserProfile) *Roster {
	r := &Roster{users: make(map[string]*models.UserProfile, len(profiles))}
	for _, p := range profiles {
		p := p
		if _, exists := r.users[p.Name]; !exists {
			r.order = append(r.order, p.Name)
		}
		r.users[p.Name] = &p
	}
	return r
}

// Match 返回第一个体重在 w±tolerance（含边界）内的用户
func (r *Roster) Match(w, tolerance float64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		known := r.users[name].WeightKg
		if known-tolerance <= w && w <= known+tolerance {
			return name, true
		}
	}
	return "", false
}

// UpdateWeight 更新用户最近体重，用户不存在返回 false
func (r *Roster) UpdateWeight(name string, w float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[name]
	if !ok {
		return false
	}
	u.WeightKg = w
	return true
}

// Users 按配置顺序返回用户名
func (r *Roster) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Weight 用户最近体重
func (r *Roster) Weight(name string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[name]
	if !ok {
		return 0, false
	}
	return u.WeightKg, true
}

// Credentials 用户的 Fitbit token，未配置时返回 false
func (r *Roster) Credentials(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[name]
	if !ok || u.FitbitToken == "" {
		return "", false
	}
	return u.FitbitToken, true
}
