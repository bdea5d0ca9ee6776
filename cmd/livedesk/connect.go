package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/livedesk/internal/config"
	"github.com/zulandar/livedesk/internal/db"
	"github.com/zulandar/livedesk/internal/desk"
	"github.com/zulandar/livedesk/internal/logging"
	"gorm.io/gorm"
)

// loadConfig reads the config file. A missing file at the default path
// falls back to built-in defaults (sqlite in the working directory).
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if configPath == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (zerolog.Logger, error) {
	log, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return zerolog.Nop(), err
	}
	return log, nil
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Open(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, gormDB, nil
}

// openDesk connects to the store and wires a desk for one command.
func openDesk(cmd *cobra.Command, configPath string) (*desk.Desk, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	d, err := desk.FromConfig(gormDB, cfg, log)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath, "path to livedesk config file")
}
