package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"nft_market/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultLogLimit caps ListLogs when no limit is given.
const DefaultLogLimit = 100

// Storage is the sqlite-backed write-ahead log of sequenced transactions and
// the index of the logs they emitted.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the database at path.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is empty")
	}

	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.TxRecord{}, &domain.LogRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Transactions
// ======================================================================================

// SaveTx writes one transaction and its logs atomically.
func (s *Storage) SaveTx(ctx context.Context, rec *domain.TxRecord, logs []domain.LogRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("save tx %d: %w", rec.Seq, err)
		}
		if len(logs) == 0 {
			return nil
		}
		if err := tx.Create(&logs).Error; err != nil {
			return fmt.Errorf("save logs of tx %d: %w", rec.Seq, err)
		}
		return nil
	})
}

// LoadTxs returns every logged transaction in sequence order.
func (s *Storage) LoadTxs(ctx context.Context) ([]domain.TxRecord, error) {
	var recs []domain.TxRecord
	err := s.db.WithContext(ctx).Order("seq ASC").Find(&recs).Error
	return recs, err
}

// GetTx retrieves a transaction by hash.
func (s *Storage) GetTx(ctx context.Context, hash string) (*domain.TxRecord, error) {
	var rec domain.TxRecord
	err := s.db.WithContext(ctx).First(&rec, "hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LastSeq returns the highest logged sequence number, or 0.
func (s *Storage) LastSeq(ctx context.Context) (uint64, error) {
	var last uint64
	err := s.db.WithContext(ctx).Model(&domain.TxRecord{}).
		Select("COALESCE(MAX(seq), 0)").Scan(&last).Error
	return last, err
}

// ======================================================================================
// Logs
// ======================================================================================

// LogFilter selects emitted logs. Zero fields match everything.
type LogFilter struct {
	Name    string
	FromSeq uint64
	Limit   int
}

// ListLogs returns logs matching f, in emission order.
func (s *Storage) ListLogs(ctx context.Context, f LogFilter) ([]domain.LogRecord, error) {
	q := s.db.WithContext(ctx).Model(&domain.LogRecord{})
	if f.Name != "" {
		q = q.Where("name = ?", f.Name)
	}
	if f.FromSeq > 0 {
		q = q.Where("seq >= ?", f.FromSeq)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	var logs []domain.LogRecord
	err := q.Order("seq ASC").Order("`index` ASC").Limit(limit).Find(&logs).Error
	return logs, err
}
