package database

import (
	"fmt"
	"os"
	"path/filepath"

	"da-go/internal/config"
	"da-go/internal/da"
)

// NewRegisterFromConfig opens the register the config names. A fresh
// file-backed register is migrated on first open; an existing one must
// already be at the current schema version.
func NewRegisterFromConfig(cfg config.DatabaseConfig, hostID string, logger da.Logger) (*SQLiteRegister, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return openMigrated(RegisterPath(cfg, hostID), logger)
	case "memory":
		return openMigrated(":memory:", logger)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// RegisterPath is the file a sqlite register for hostID lives in.
func RegisterPath(cfg config.DatabaseConfig, hostID string) string {
	return filepath.Join(cfg.DataDir, hostID+".db")
}

func openMigrated(path string, logger da.Logger) (*SQLiteRegister, error) {
	fresh := path == ":memory:"
	if !fresh {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fresh = true
		}
	}
	r, err := NewSQLiteRegister(path, nil, logger)
	if err != nil {
		return nil, err
	}
	if fresh {
		if err := r.MigrateUp(); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}
