package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-scale/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPersistence 历史存储读写失败
var ErrPersistence = errors.New("persistence error")

const recordColumns = `record_id, user_name, year, month, day, hour, weight_kg, is_morning, is_last, created_at`

// querier *sql.DB 和 *sql.Tx 的公共部分
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLHistoryStore 基于 SQL 的称重历史
// 第一次 Save 时开启事务，Commit/Rollback 结束事务；事务内的查询能看到未提交的写入
type SQLHistoryStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger

	mu sync.Mutex
	tx *sql.Tx
}

// NewSQLHistoryStore 创建历史存储
func NewSQLHistoryStore(db *sql.DB, dialect Dialect, logger *zap.Logger) *SQLHistoryStore {
	return &SQLHistoryStore{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

func (s *SQLHistoryStore) conn() querier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// TodayMorning 用户当天的晨重记录
func (s *SQLHistoryStore) TodayMorning(ctx context.Context, user string, year, month, day int) (*models.WeightRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM weight_records
		WHERE user_name = ? AND year = ? AND month = ? AND day = ? AND is_morning = TRUE
		ORDER BY created_at DESC LIMIT 1`
	return s.queryOne(ctx, query, user, year, month, day)
}

// LastMorning 用户当前的 last 晨重记录（任意日期）
func (s *SQLHistoryStore) LastMorning(ctx context.Context, user string) (*models.WeightRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM weight_records
		WHERE user_name = ? AND is_morning = TRUE AND is_last = TRUE
		ORDER BY created_at DESC LIMIT 1`
	return s.queryOne(ctx, query, user)
}

// Last 用户当前 last 标记的记录
func (s *SQLHistoryStore) Last(ctx context.Context, user string) (*models.WeightRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM weight_records
		WHERE user_name = ? AND is_last = TRUE
		ORDER BY created_at DESC LIMIT 1`
	return s.queryOne(ctx, query, user)
}

// ListByUser 用户全部记录，按时间升序
func (s *SQLHistoryStore) ListByUser(ctx context.Context, user string) ([]*models.WeightRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM weight_records
		WHERE user_name = ?
		ORDER BY created_at ASC`
	return s.queryMany(ctx, query, user)
}

// List 全部记录，按时间升序
func (s *SQLHistoryStore) List(ctx context.Context) ([]*models.WeightRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM weight_records ORDER BY created_at ASC`
	return s.queryMany(ctx, query)
}

// Save 插入或更新记录（按 record_id），ID 为空时生成
func (s *SQLHistoryStore) Save(ctx context.Context, record *models.WeightRecord) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `INSERT INTO weight_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (record_id) DO UPDATE SET
			user_name = excluded.user_name,
			weight_kg = excluded.weight_kg,
			is_morning = excluded.is_morning,
			is_last = excluded.is_last`
	_, err = tx.ExecContext(ctx, s.dialect.rebind(query),
		record.ID,
		record.User,
		record.Year,
		record.Month,
		record.Day,
		record.Hour,
		record.W,
		record.Morning,
		record.Last,
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: save record %s: %v", ErrPersistence, record.ID, err)
	}

	s.logger.Debug("Weight record saved",
		zap.String("record_id", record.ID),
		zap.String("user", record.User),
		zap.Bool("morning", record.Morning),
		zap.Bool("last", record.Last),
	)
	return nil
}

// Commit 提交当前事务，没有未提交写入时直接返回
func (s *SQLHistoryStore) Commit(ctx context.Context) error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()

	if tx == nil {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrPersistence, err)
	}
	return nil
}

// Rollback 放弃未提交的写入
func (s *SQLHistoryStore) Rollback(ctx context.Context) error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()

	if tx == nil {
		return nil
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: rollback: %v", ErrPersistence, err)
	}
	return nil
}

func (s *SQLHistoryStore) begin(ctx context.Context) (*sql.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	s.tx = tx
	return tx, nil
}

func (s *SQLHistoryStore) queryOne(ctx context.Context, query string, args ...interface{}) (*models.WeightRecord, error) {
	row := s.conn().QueryRowContext(ctx, s.dialect.rebind(query), args...)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrPersistence, err)
	}
	return record, nil
}

func (s *SQLHistoryStore) queryMany(ctx context.Context, query string, args ...interface{}) ([]*models.WeightRecord, error) {
	rows, err := s.conn().QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var records []*models.WeightRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrPersistence, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrPersistence, err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.WeightRecord, error) {
	var (
		r         models.WeightRecord
		createdAt int64
	)
	if err := row.Scan(
		&r.ID,
		&r.User,
		&r.Year,
		&r.Month,
		&r.Day,
		&r.Hour,
		&r.W,
		&r.Morning,
		&r.Last,
		&createdAt,
	); err != nil {
		return nil, err
	}
	r.CreatedAt = time.UnixMilli(createdAt)
	return &r, nil
}
