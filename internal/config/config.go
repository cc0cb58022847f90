package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/tasksync/internal/domain/entity"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Logger    LoggerConfig   `mapstructure:"logger"`
	Sync      SyncConfig     `mapstructure:"sync"`
	Undo      UndoConfig     `mapstructure:"undo"`
	Reminders ReminderConfig `mapstructure:"reminders"`
	Family    FamilyConfig   `mapstructure:"family"`
	Members   []MemberConfig `mapstructure:"members"`
	I18n      I18nConfig     `mapstructure:"i18n"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds local cache database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// SyncConfig controls connectivity and offline queue behavior
type SyncConfig struct {
	StartOnline     bool          `mapstructure:"start_online"`
	ReleaseDelay    time.Duration `mapstructure:"release_delay"`
	DrainInterval   time.Duration `mapstructure:"drain_interval"`
	RemoteTimeout   time.Duration `mapstructure:"remote_timeout"`
	FallbackTimeout time.Duration `mapstructure:"fallback_timeout"`
	ProbeInterval   time.Duration `mapstructure:"probe_interval"`
}

// UndoConfig holds the undo window
type UndoConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// ReminderConfig holds reminder timing
type ReminderConfig struct {
	LeadTime    time.Duration `mapstructure:"lead_time"`
	Throttle    time.Duration `mapstructure:"throttle"`
	DefaultHour int           `mapstructure:"default_hour"`
}

// FamilyConfig identifies the shared household
type FamilyConfig struct {
	ID string `mapstructure:"id"`
}

// MemberConfig is one roster entry
type MemberConfig struct {
	ID          string             `mapstructure:"id"`
	Name        string             `mapstructure:"name"`
	Role        string             `mapstructure:"role"`
	FamilyID    string             `mapstructure:"family_id"`
	Permissions entity.Permissions `mapstructure:"permissions"`
}

// I18nConfig holds translation settings
type I18nConfig struct {
	DefaultLanguage   string `mapstructure:"default_language"`
	TranslationFolder string `mapstructure:"translation_folder"`
}

// Load loads configuration from file and environment variables.
// A .env file in the working directory is applied to the environment first.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/tasksync.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Sync defaults
	v.SetDefault("sync.start_online", true)
	v.SetDefault("sync.release_delay", 1500*time.Millisecond)
	v.SetDefault("sync.drain_interval", 30*time.Second)
	v.SetDefault("sync.remote_timeout", 10*time.Second)
	v.SetDefault("sync.fallback_timeout", 5*time.Second)
	v.SetDefault("sync.probe_interval", time.Duration(0))

	v.SetDefault("undo.window", 10*time.Second)

	v.SetDefault("reminders.lead_time", 15*time.Minute)
	v.SetDefault("reminders.throttle", 2*time.Second)
	v.SetDefault("reminders.default_hour", 9)

	v.SetDefault("i18n.default_language", "en")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"database.path":           "TASKSYNC_DB_PATH",
		"logger.level":            "TASKSYNC_LOG_LEVEL",
		"server.port":             "TASKSYNC_PORT",
		"sync.start_online":       "TASKSYNC_START_ONLINE",
		"family.id":               "TASKSYNC_FAMILY_ID",
		"i18n.default_language":   "TASKSYNC_LANGUAGE",
		"i18n.translation_folder": "TASKSYNC_TRANSLATIONS",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Members) == 0 {
		return fmt.Errorf("members: at least one member is required")
	}

	seen := make(map[string]bool, len(c.Members))
	for i, m := range c.Members {
		if m.ID == "" {
			return fmt.Errorf("members[%d].id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("members[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
		if !entity.Role(m.Role).IsValid() {
			return fmt.Errorf("members[%d]: unknown role %q", i, m.Role)
		}
	}

	if c.Undo.Window <= 0 {
		return fmt.Errorf("undo.window must be positive")
	}
	if c.Sync.ReleaseDelay <= 0 {
		return fmt.Errorf("sync.release_delay must be positive")
	}
	if c.Sync.DrainInterval <= 0 {
		return fmt.Errorf("sync.drain_interval must be positive")
	}
	if c.Sync.RemoteTimeout <= 0 || c.Sync.FallbackTimeout <= 0 {
		return fmt.Errorf("sync timeouts must be positive")
	}
	if c.Sync.ProbeInterval < 0 {
		return fmt.Errorf("sync.probe_interval must not be negative")
	}
	if c.Reminders.DefaultHour < 0 || c.Reminders.DefaultHour > 23 {
		return fmt.Errorf("reminders.default_hour must be between 0 and 23")
	}

	return nil
}

// Roster converts the configured members to domain members.
// Members without a family inherit family.id.
func (c *Config) Roster() []entity.Member {
	out := make([]entity.Member, 0, len(c.Members))
	for _, m := range c.Members {
		family := m.FamilyID
		if family == "" {
			family = c.Family.ID
		}
		out = append(out, entity.Member{
			ID:          m.ID,
			Name:        m.Name,
			Role:        entity.Role(m.Role),
			FamilyID:    family,
			Permissions: m.Permissions,
		})
	}
	return out
}

// FamilyID returns the configured family, or nil for personal scope.
func (c *Config) FamilyID() *string {
	if c.Family.ID == "" {
		return nil
	}
	id := c.Family.ID
	return &id
}
