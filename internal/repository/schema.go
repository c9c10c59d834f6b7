package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// 两种方言共用的建表语句
// created_at 存 Unix 毫秒，避免两种驱动的时间类型差异
var schema = []string{
	`CREATE TABLE IF NOT EXISTS weight_records (
		record_id  TEXT PRIMARY KEY,
		user_name  TEXT NOT NULL,
		year       INTEGER NOT NULL,
		month      INTEGER NOT NULL,
		day        INTEGER NOT NULL,
		hour       INTEGER NOT NULL,
		weight_kg  DOUBLE PRECISION NOT NULL,
		is_morning BOOLEAN NOT NULL DEFAULT FALSE,
		is_last    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_weight_records_user_flags
		ON weight_records (user_name, is_morning, is_last)`,
	`CREATE INDEX IF NOT EXISTS idx_weight_records_user_date
		ON weight_records (user_name, year, month, day)`,
}

// Migrate 创建表和索引（幂等）
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %v", ErrPersistence, err)
		}
	}
	return nil
}
