package processor

import (
	"context"
	"fmt"
	"time"

	"wisefido-scale/internal/models"

	"go.uber.org/zap"
)

// HistoryStore 称重历史
// 查询未命中时返回 (nil, nil)；Save 的写入在 Commit 之后才持久
type HistoryStore interface {
	TodayMorning(ctx context.Context, user string, year, month, day int) (*models.WeightRecord, error)
	LastMorning(ctx context.Context, user string) (*models.WeightRecord, error)
	Last(ctx context.Context, user string) (*models.WeightRecord, error)
	Save(ctx context.Context, record *models.WeightRecord) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Forwarder 把晨重上报到外部服务，失败只记录日志
type Forwarder interface {
	LogWeight(ctx context.Context, user string, weightKg float64) error
}

// RosterCache 名单体重缓存（跨进程重启保留）
type RosterCache interface {
	Load(ctx context.Context) (map[string]float64, error)
	Store(ctx context.Context, user string, weightKg float64) error
}

// Processor 识别用户并决定记录为晨重还是普通记录
type Processor struct {
	cfg       Configuration
	roster    *Roster
	history   HistoryStore
	forwarder Forwarder
	cache     RosterCache
	logger    *zap.Logger
}

// NewProcessor 创建分类器；forwarder 和 cache 可以为 nil
func NewProcessor(
	cfg Configuration,
	roster *Roster,
	history HistoryStore,
	forwarder Forwarder,
	cache RosterCache,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		cfg:       cfg,
		roster:    roster,
		history:   history,
		forwarder: forwarder,
		cache:     cache,
		logger:    logger,
	}
}

// Roster 当前名单
func (p *Processor) Roster() *Roster {
	return p.roster
}

// HydrateRoster 用历史中每个用户最近的 last 记录刷新名单体重，缓存中的值优先
func (p *Processor) HydrateRoster(ctx context.Context) error {
	for _, user := range p.roster.Users() {
		last, err := p.history.Last(ctx, user)
		if err != nil {
			return fmt.Errorf("failed to load last record for %s: %w", user, err)
		}
		if last != nil {
			p.roster.UpdateWeight(user, last.W)
		}
	}

	if p.cache == nil {
		return nil
	}
	cached, err := p.cache.Load(ctx)
	if err != nil {
		p.logger.Warn("Failed to load roster cache", zap.Error(err))
		return nil
	}
	for user, w := range cached {
		if p.roster.UpdateWeight(user, w) {
			p.logger.Debug("Roster weight restored from cache",
				zap.String("user", user),
				zap.Float64("weight_kg", w),
			)
		}
	}
	return nil
}

// Process 处理一次稳定读数，返回已持久化的记录
// 持久化失败时本条记录丢弃，名单不更新
func (p *Processor) Process(ctx context.Context, w float64, now time.Time) (*models.WeightRecord, error) {
	record := models.NewWeightRecord(w, now)

	user, matched := p.roster.Match(w, p.cfg.MaxWeightDiffToDefineUser)
	var forward bool
	var err error
	if matched {
		p.logger.Debug("User matched", zap.String("user", user), zap.Float64("weight_kg", w))
		record.User = user
		forward, err = p.classify(ctx, record)
	} else {
		p.logger.Warn("Nobody is matching", zap.Float64("weight_kg", w))
		record.User = models.UnknownUser
		err = p.saveRegular(ctx, record)
	}
	if err != nil {
		p.rollback(ctx)
		return nil, err
	}

	if err := p.history.Commit(ctx); err != nil {
		p.rollback(ctx)
		return nil, err
	}

	if forward {
		p.forward(ctx, record)
	}
	if matched {
		p.refreshRoster(ctx, user, w)
	}
	return record, nil
}

// classify 已识别用户的晨重流程，返回是否需要上报
func (p *Processor) classify(ctx context.Context, record *models.WeightRecord) (bool, error) {
	today, err := p.history.TodayMorning(ctx, record.User, record.Year, record.Month, record.Day)
	if err != nil {
		return false, err
	}
	last, err := p.history.LastMorning(ctx, record.User)
	if err != nil {
		return false, err
	}

	switch {
	case today == nil && last == nil:
		// 第一条记录不受时段限制
		p.logger.Info("First value for user, saving as morning baseline", zap.String("user", record.User))
		return true, p.saveMorning(ctx, record, nil)

	case !p.cfg.InMorningHours(record.Hour):
		p.logger.Debug("Outside morning hours, saving as regular",
			zap.Int("hour", record.Hour),
			zap.Stringer("morning_hours", p.cfg.MorningHours),
		)
		return false, p.saveRegular(ctx, record)

	case today == nil:
		if p.suspicious(record, last) {
			p.logger.Warn("Weight diff is too significant for a morning value, saving as regular",
				zap.String("user", record.User),
				zap.Float64("weight_kg", record.W),
				zap.Float64("last_morning_kg", last.W),
			)
			return false, p.saveRegular(ctx, record)
		}
		p.logger.Info("Saving as morning weight for today", zap.String("user", record.User))
		return true, p.saveMorning(ctx, record, last)

	default:
		p.logger.Info("Morning value already recorded today, saving as regular", zap.String("user", record.User))
		return false, p.saveRegular(ctx, record)
	}
}

// suspicious 距上次晨重不久且体重上涨超过阈值
func (p *Processor) suspicious(record, last *models.WeightRecord) bool {
	days := models.DaysBetween(record, last)
	diff := record.W - last.W
	p.logger.Debug("Compare with last morning value",
		zap.Int("days", days),
		zap.Float64("diff_kg", diff),
	)
	// 上界不含：相隔恰好 MaxPauseForMorningChecksDays 天时不再比较体重差
	return days < p.cfg.MaxPauseForMorningChecksDays && diff > p.cfg.MaxMorningWeightDiff
}

func (p *Processor) saveMorning(ctx context.Context, record, previous *models.WeightRecord) error {
	if previous != nil {
		previous.Last = false
		if err := p.history.Save(ctx, previous); err != nil {
			return err
		}
	}
	record.Morning = true
	record.Last = true
	return p.history.Save(ctx, record)
}

func (p *Processor) saveRegular(ctx context.Context, record *models.WeightRecord) error {
	record.Morning = false
	record.Last = false
	return p.history.Save(ctx, record)
}

func (p *Processor) rollback(ctx context.Context) {
	if err := p.history.Rollback(ctx); err != nil {
		p.logger.Warn("Failed to roll back history", zap.Error(err))
	}
}

func (p *Processor) forward(ctx context.Context, record *models.WeightRecord) {
	if p.forwarder == nil {
		return
	}
	if err := p.forwarder.LogWeight(ctx, record.User, record.W); err != nil {
		p.logger.Error("Failed to forward weight",
			zap.String("user", record.User),
			zap.Float64("weight_kg", record.W),
			zap.Error(err),
		)
	}
}

func (p *Processor) refreshRoster(ctx context.Context, user string, w float64) {
	p.roster.UpdateWeight(user, w)
	if p.cache == nil {
		return
	}
	if err := p.cache.Store(ctx, user, w); err != nil {
		p.logger.Warn("Failed to update roster cache", zap.String("user", user), zap.Error(err))
	}
}
