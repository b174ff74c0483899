// Package ledger records conversion attempts in a local SQLite database so
// that past runs can be listed with the history command.
package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// Pure Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// DefaultPath is the ledger file used when no --ledger flag is given.
const DefaultPath = "ebookcast.db"

// Status is the outcome of one book attempt.
type Status string

// Attempt statuses.
const (
	StatusConverted Status = "converted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Attempt is one processed book of a run.
type Attempt struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        string `gorm:"index;not null"`
	RelativePath string `gorm:"index;not null"`
	Name         string `gorm:"not null"`
	LangCode     string `gorm:"not null"`
	Status       Status `gorm:"index;not null"`
	Error        string
	OutputPath   string
	StartedAt    time.Time `gorm:"not null"`
	FinishedAt   time.Time `gorm:"index;not null"`
}

// Duration returns how long the attempt took.
func (a Attempt) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}

// Ledger wraps the GORM connection.
type Ledger struct {
	db *gorm.DB
}

// Open opens (creating if needed) the ledger at path and migrates the schema.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: path}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite only supports one writer at a time.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&Attempt{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores an attempt.
func (l *Ledger) Record(ctx context.Context, a *Attempt) error {
	if err := l.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to record attempt for %s: %w", a.RelativePath, err)
	}
	return nil
}

// Recent returns up to limit attempts, newest first. A limit of zero or
// less returns all attempts.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	var attempts []Attempt
	q := l.db.WithContext(ctx).Order("finished_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

// ByRun returns the attempts of one run in processing order.
func (l *Ledger) ByRun(ctx context.Context, runID string) ([]Attempt, error) {
	var attempts []Attempt
	if err := l.db.WithContext(ctx).Where("run_id = ?", runID).Order("id ASC").Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts of run %s: %w", runID, err)
	}
	return attempts, nil
}
