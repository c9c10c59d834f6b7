package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-scale/internal/aggregator"
	"wisefido-scale/internal/board"
	"wisefido-scale/internal/config"
	"wisefido-scale/internal/display"
	"wisefido-scale/internal/models"
	"wisefido-scale/internal/processor"

	"go.uber.org/zap"
)

// errBoardNotFound 扫描结束仍未发现平衡板
var errBoardNotFound = errors.New("no balance board discovered")

const defaultRetryDelay = 5 * time.Second

// AddressFinder 扫描平衡板地址
type AddressFinder interface {
	Discover(ctx context.Context) (string, bool, error)
}

// ResetLine 启动时的硬件复位
type ResetLine interface {
	Pulse(ctx context.Context) error
}

// Components 服务依赖；Finder、Reset、Forwarder、Cache 可以为 nil
type Components struct {
	Dialer    board.Dialer
	Finder    AddressFinder
	Reset     ResetLine
	Roster    *processor.Roster
	History   processor.HistoryStore
	Forwarder processor.Forwarder
	Cache     processor.RosterCache
	Display   display.Display
	Closers   []func() error
}

// ScaleService 体重秤主循环：连接平衡板，逐次测量、分类并持久化
type ScaleService struct {
	config     *config.Config
	logger     *zap.Logger
	board      *board.Board
	finder     AddressFinder
	reset      ResetLine
	aggregator *aggregator.Aggregator
	processor  *processor.Processor
	display    display.Display
	closers    []func() error
	retryDelay time.Duration
	now        func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewScaleServiceWith 用给定依赖创建服务
func NewScaleServiceWith(cfg *config.Config, c Components, logger *zap.Logger) *ScaleService {
	if c.Roster == nil {
		c.Roster = processor.NewRoster(cfg.Users)
	}
	if c.Display == nil {
		c.Display = display.NewLogDisplay(logger)
	}

	b := board.NewBoard(c.Dialer, board.Options{PollInterval: cfg.Board.PollInterval}, logger.Named("board"))
	agg := aggregator.NewAggregator(aggregator.Config{
		StandOnThresholdKg: cfg.Aggregation.StandOnThresholdKg,
		RenderInterval:     cfg.Aggregation.RenderInterval,
		DisplayOffsetKg:    cfg.Aggregation.WeightCorrectionKg,
	}, b, c.Display, logger.Named("aggregator"))
	proc := processor.NewProcessor(cfg.Processor, c.Roster, c.History, c.Forwarder, c.Cache, logger.Named("processor"))

	return &ScaleService{
		config:     cfg,
		logger:     logger,
		board:      b,
		finder:     c.Finder,
		reset:      c.Reset,
		aggregator: agg,
		processor:  proc,
		display:    c.Display,
		closers:    c.Closers,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
	}
}

// Board 平衡板
func (s *ScaleService) Board() *board.Board {
	return s.board
}

// Start 复位、加载名单，然后循环测量直到 ctx 取消或 Stop
// 链路断开时重新扫描并连接
func (s *ScaleService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.stopped = stopped
	s.mu.Unlock()
	defer close(stopped)
	defer cancel()

	s.logger.Info("Starting scale service",
		zap.String("board_address", s.config.Board.Address),
		zap.Int("users", len(s.processor.Roster().Users())),
	)

	if s.reset != nil {
		if err := s.reset.Pulse(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("Failed to pulse reset line", zap.Error(err))
		}
	}

	if err := s.processor.HydrateRoster(ctx); err != nil {
		s.logger.Warn("Failed to hydrate roster from history", zap.Error(err))
	}

	for ctx.Err() == nil {
		if !s.board.IsConnected() {
			if err := s.connect(ctx); err != nil {
				if ctx.Err() != nil {
					break
				}
				s.logger.Error("Failed to connect to balance board", zap.Error(err))
				if !sleep(ctx, s.retryDelay) {
					break
				}
				continue
			}
			if ctx.Err() != nil {
				// Stop 在拨号期间到达，Disconnect 当时还看不到连接
				s.board.Disconnect(context.Background())
				break
			}
		}

		record, err := s.RunCycle(ctx)
		switch {
		case err == nil:
			if record != nil {
				s.logger.Info("Measurement recorded",
					zap.String("record_id", record.ID),
					zap.String("user", record.User),
					zap.Float64("weight_kg", record.W),
					zap.Bool("morning", record.Morning),
				)
			}
		case ctx.Err() != nil:
		case errors.Is(err, board.ErrConnection):
			s.logger.Warn("Balance board link lost, reconnecting", zap.Error(err))
		default:
			s.logger.Error("Failed to process measurement", zap.Error(err))
		}
	}
	return nil
}

// RunCycle 完成一次测量：等待站上和离开、取众数、分类持久化、保持显示后熄灯清屏
// 接收被中断（断开或取消）时返回 (nil, nil) 或对应错误
func (s *ScaleService) RunCycle(ctx context.Context) (*models.WeightRecord, error) {
	s.aggregator.Reset()
	if err := s.board.Receive(ctx, s.aggregator); err != nil {
		return nil, err
	}
	if !s.aggregator.Done() {
		return nil, nil
	}

	weight := aggregator.Round1(s.aggregator.Weight() + s.config.Aggregation.WeightCorrectionKg)
	if err := s.display.Render(aggregator.FormatWeight(weight)); err != nil {
		s.logger.Debug("Failed to render final weight", zap.Error(err))
	}

	record, err := s.processor.Process(ctx, weight, s.now())
	if err != nil {
		err = fmt.Errorf("weight %.1f kg lost: %w", weight, err)
	}

	sleep(ctx, s.config.Display.Hold)
	if _, lerr := s.board.SetLight(false); lerr != nil {
		s.logger.Warn("Failed to switch light off", zap.Error(lerr))
	}
	if derr := s.display.Clear(); derr != nil {
		s.logger.Debug("Failed to clear display", zap.Error(derr))
	}
	s.logger.Debug("Ready for next measurement")
	return record, err
}

// Stop 结束主循环、断开平衡板并释放资源
func (s *ScaleService) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.board.Disconnect(ctx)
	if stopped != nil {
		select {
		case <-stopped:
		case <-ctx.Done():
			s.logger.Warn("Scale loop did not stop in time", zap.Error(ctx.Err()))
		}
	}

	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *ScaleService) connect(ctx context.Context) error {
	address := s.config.Board.Address
	if address == "" {
		if s.finder == nil {
			return errBoardNotFound
		}
		found, ok, err := s.finder.Discover(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errBoardNotFound
		}
		address = found
	}

	s.logger.Info("Trying to connect", zap.String("address", address))
	if err := s.board.Connect(ctx, address); err != nil {
		return err
	}
	if _, err := s.board.SetLight(false); err != nil {
		s.logger.Warn("Failed to switch light off", zap.Error(err))
	}
	return nil
}

// sleep 等待 d，ctx 取消时返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
