package db

import (
	"fmt"
	"os"

	"github.com/zulandar/livedesk/internal/config"
	"github.com/zulandar/livedesk/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model livedesk persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.Session{},
		&models.Message{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Reset drops every livedesk table and migrates them again. For mysql the
// whole database is dropped and recreated.
func Reset(cfg config.StoreConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		adminDB, err := ConnectAdmin(cfg)
		if err != nil {
			return nil, err
		}
		if err := DropDatabase(adminDB, cfg.Database); err != nil {
			return nil, err
		}
		if err := CreateDatabase(adminDB, cfg.Database); err != nil {
			return nil, err
		}
	default:
		if cfg.Path != ":memory:" {
			if err := os.Remove(cfg.Path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("db: remove %s: %w", cfg.Path, err)
			}
		}
	}
	gormDB, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

// Init prepares the configured store: creates the mysql database when
// needed and migrates all tables.
func Init(cfg config.StoreConfig) (*gorm.DB, error) {
	if cfg.Driver == config.DriverMySQL {
		adminDB, err := ConnectAdmin(cfg)
		if err != nil {
			return nil, err
		}
		if err := CreateDatabase(adminDB, cfg.Database); err != nil {
			return nil, err
		}
	}
	gormDB, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}
