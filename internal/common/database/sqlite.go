package database

import (
	"database/sql"
	"fmt"

	"wisefido-scale/internal/common/config"

	_ "modernc.org/sqlite"
)

// NewSQLiteDB 打开本地 SQLite 文件
// 秤只有一个写入者，连接池固定为 1，避免 database is locked
func NewSQLiteDB(cfg *config.SQLiteConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return db, nil
}
