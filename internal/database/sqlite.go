package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pressplaylabs/collector/internal/collect"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open establishes the SQLite connection and performs schema migrations.
// The pool is capped at a single connection: every concurrent caller shares
// one live handle, created exactly once at startup. The store itself
// serializes concurrent writes.
func Open(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&collect.CaptureRecord{}, &collect.GameRecord{}, &collect.SessionRecord{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
