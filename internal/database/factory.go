package database

import (
	"fmt"
	"os"
	"path/filepath"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/config"
)

// NewDatabaseFromConfig opens the local store selected by cfg.Type.
// SQLite stores are kept per login, so several wallets can share a data dir.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, login string) (ardrive.Database, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		path = filepath.Join(cfg.DataDir, login+".db")
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
