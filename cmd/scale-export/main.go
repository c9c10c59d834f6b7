package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"wisefido-scale/internal/common/logger"
	"wisefido-scale/internal/config"
	"wisefido-scale/internal/export"
	"wisefido-scale/internal/models"
	"wisefido-scale/internal/repository"
	"wisefido-scale/internal/service"

	"go.uber.org/zap"
)

func main() {
	// Parse command line arguments
	var user = flag.String("user", "", "Export only this user's records (default: all users)")
	var output = flag.String("o", "weight-history.xlsx", "Output workbook path")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "scale-export")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	db, dialect, err := service.OpenStore(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to open history store", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := repository.Migrate(ctx, db); err != nil {
		zapLogger.Fatal("Failed to migrate history store", zap.Error(err))
	}
	store := repository.NewSQLHistoryStore(db, dialect, zapLogger.Named("history"))

	var records []*models.WeightRecord
	if *user != "" {
		records, err = store.ListByUser(ctx, *user)
	} else {
		records, err = store.List(ctx)
	}
	if err != nil {
		zapLogger.Fatal("Failed to list records", zap.Error(err))
	}

	f, err := os.Create(*output)
	if err != nil {
		zapLogger.Fatal("Failed to create output file", zap.String("path", *output), zap.Error(err))
	}
	if err := export.WriteWorkbook(f, records); err != nil {
		f.Close()
		zapLogger.Fatal("Failed to write workbook", zap.Error(err))
	}
	if err := f.Close(); err != nil {
		zapLogger.Fatal("Failed to close output file", zap.Error(err))
	}

	fmt.Printf("Exported %d records to %s\n", len(records), *output)
}
