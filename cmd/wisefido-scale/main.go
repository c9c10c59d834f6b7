package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-scale/internal/common/logger"
	"wisefido-scale/internal/config"
	"wisefido-scale/internal/service"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// 命令行参数优先于 BOARD_ADDRESS
	if len(os.Args) > 1 && os.Args[1] != "" {
		cfg.Board.Address = os.Args[1]
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-scale")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting wisefido-scale service",
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("board_address", cfg.Board.Address),
		zap.Int("users", len(cfg.Users)),
	)

	// 创建服务
	scaleService, err := service.NewScaleService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create scale service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- scaleService.Start(ctx)
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-done:
		if err != nil {
			zapLogger.Error("Scale service exited", zap.Error(err))
		}
	}

	// 优雅关闭
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := scaleService.Stop(stopCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
