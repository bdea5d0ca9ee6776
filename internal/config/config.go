// Package config provides YAML-based configuration loading for livedesk.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Activation policies for moving a session from waiting to active.
const (
	ActivationFirstAgentMessage = "first_agent_message"
	ActivationExplicit          = "explicit"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config is the top-level livedesk configuration, loaded from livedesk.yaml.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Sync   SyncConfig   `yaml:"sync"`
	Server ServerConfig `yaml:"server"`
	Notify NotifyConfig `yaml:"notify"`
	Log    LogConfig    `yaml:"log"`
}

// StoreConfig selects and locates the backing database.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"` // sqlite file, ":memory:" allowed
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// SyncConfig tunes the synchronization engine and roster.
type SyncConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	RosterInterval    time.Duration `yaml:"roster_interval"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
	EchoWindow        time.Duration `yaml:"echo_window"`
	Activation        string        `yaml:"activation"`
	Feed              *bool         `yaml:"feed"` // nil means enabled
}

// FeedEnabled reports whether the in-process push feed should be used.
func (s SyncConfig) FeedEnabled() bool {
	return s.Feed == nil || *s.Feed
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig controls agent alerts for new sessions and visitor messages.
type NotifyConfig struct {
	Command string        `yaml:"command"` // shell template, e.g. "notify-send '{{.Title}}' '{{.Body}}'"
	Slack   ChannelConfig `yaml:"slack"`
	Discord ChannelConfig `yaml:"discord"`
}

// ChannelConfig identifies a bot and the channel it posts to.
type ChannelConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Enabled reports whether both token and channel are set.
func (c ChannelConfig) Enabled() bool {
	return c.BotToken != "" && c.ChannelID != ""
}

func (c ChannelConfig) partial() bool {
	return (c.BotToken == "") != (c.ChannelID == "")
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto, console, json
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			c.Store.Path = "livedesk.db"
		}
	case DriverMySQL:
		if c.Store.Host == "" {
			c.Store.Host = "127.0.0.1"
		}
		if c.Store.Port == 0 {
			c.Store.Port = 3306
		}
		if c.Store.User == "" {
			c.Store.User = "root"
		}
		if c.Store.Database == "" {
			c.Store.Database = "livedesk"
		}
	}
	if c.Sync.ReconcileInterval == 0 {
		c.Sync.ReconcileInterval = 2 * time.Second
	}
	if c.Sync.RosterInterval == 0 {
		c.Sync.RosterInterval = 3 * time.Second
	}
	if c.Sync.SendTimeout == 0 {
		c.Sync.SendTimeout = 5 * time.Second
	}
	if c.Sync.EchoWindow == 0 {
		c.Sync.EchoWindow = 10 * time.Second
	}
	if c.Sync.Activation == "" {
		c.Sync.Activation = ActivationFirstAgentMessage
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Store.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or mysql", c.Store.Driver))
	}
	if c.Sync.ReconcileInterval < 0 {
		errs = append(errs, "sync.reconcile_interval must be positive")
	}
	if c.Sync.RosterInterval < 0 {
		errs = append(errs, "sync.roster_interval must be positive")
	}
	if c.Sync.SendTimeout < 0 {
		errs = append(errs, "sync.send_timeout must be positive")
	}
	if c.Sync.EchoWindow < 0 {
		errs = append(errs, "sync.echo_window must be positive")
	}
	switch c.Sync.Activation {
	case ActivationFirstAgentMessage, ActivationExplicit:
	default:
		errs = append(errs, fmt.Sprintf("sync.activation %q must be %s or %s",
			c.Sync.Activation, ActivationFirstAgentMessage, ActivationExplicit))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be auto, console or json", c.Log.Format))
	}
	if c.Notify.Slack.partial() {
		errs = append(errs, "notify.slack needs both bot_token and channel_id")
	}
	if c.Notify.Discord.partial() {
		errs = append(errs, "notify.discord needs both bot_token and channel_id")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
