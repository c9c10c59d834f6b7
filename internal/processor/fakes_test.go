package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wisefido-scale/internal/models"

	"github.com/stretchr/testify/mock"
)

// memoryHistory 内存历史，Save 暂存到 Commit 为止
type memoryHistory struct {
	mu        sync.Mutex
	committed []*models.WeightRecord
	pending   []*models.WeightRecord
	nextID    int
	commits   int
	rollbacks int
	saveErr   error
	commitErr error
}

func newMemoryHistory(seed ...*models.WeightRecord) *memoryHistory {
	h := &memoryHistory{}
	for _, r := range seed {
		h.assignID(r)
		h.committed = append(h.committed, clone(r))
	}
	return h
}

func clone(r *models.WeightRecord) *models.WeightRecord {
	c := *r
	return &c
}

func (h *memoryHistory) assignID(r *models.WeightRecord) {
	if r.ID == "" {
		h.nextID++
		r.ID = fmt.Sprintf("rec-%d", h.nextID)
	}
}

func (h *memoryHistory) find(match func(*models.WeightRecord) bool) *models.WeightRecord {
	for i := len(h.committed) - 1; i >= 0; i-- {
		if match(h.committed[i]) {
			return clone(h.committed[i])
		}
	}
	return nil
}

func (h *memoryHistory) TodayMorning(_ context.Context, user string, year, month, day int) (*models.WeightRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.find(func(r *models.WeightRecord) bool {
		return r.User == user && r.Morning && r.Year == year && r.Month == month && r.Day == day
	}), nil
}

func (h *memoryHistory) LastMorning(_ context.Context, user string) (*models.WeightRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.find(func(r *models.WeightRecord) bool {
		return r.User == user && r.Morning && r.Last
	}), nil
}

func (h *memoryHistory) Last(_ context.Context, user string) (*models.WeightRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.find(func(r *models.WeightRecord) bool {
		return r.User == user && r.Last
	}), nil
}

func (h *memoryHistory) Save(_ context.Context, r *models.WeightRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.saveErr != nil {
		return h.saveErr
	}
	h.assignID(r)
	h.pending = append(h.pending, clone(r))
	return nil
}

func (h *memoryHistory) Commit(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commits++
	if h.commitErr != nil {
		return h.commitErr
	}
	for _, p := range h.pending {
		replaced := false
		for i, c := range h.committed {
			if c.ID == p.ID {
				h.committed[i] = p
				replaced = true
			}
		}
		if !replaced {
			h.committed = append(h.committed, p)
		}
	}
	h.pending = nil
	return nil
}

func (h *memoryHistory) Rollback(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rollbacks++
	h.pending = nil
	return nil
}

func (h *memoryHistory) byID(id string) *models.WeightRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.committed {
		if r.ID == id {
			return clone(r)
		}
	}
	return nil
}

func (h *memoryHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.committed)
}

// MockForwarder 是 Forwarder 的 mock 实现
type MockForwarder struct {
	mock.Mock
}

func (m *MockForwarder) LogWeight(ctx context.Context, user string, weightKg float64) error {
	args := m.Called(ctx, user, weightKg)
	return args.Error(0)
}

// memoryCache 内存名单缓存
type memoryCache struct {
	weights map[string]float64
	loadErr error
}

func (c *memoryCache) Load(context.Context) (map[string]float64, error) {
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	out := make(map[string]float64, len(c.weights))
	for k, v := range c.weights {
		out[k] = v
	}
	return out, nil
}

func (c *memoryCache) Store(_ context.Context, user string, w float64) error {
	if c.weights == nil {
		c.weights = make(map[string]float64)
	}
	c.weights[user] = w
	return nil
}

var errStore = errors.New("disk full")
