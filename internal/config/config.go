// Package config handles application configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the application configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Reminder ReminderConfig `yaml:"reminder"`
	Feed     FeedConfig     `yaml:"feed"`
}

// TelegramConfig holds bot settings. ChatID receives reminder alerts;
// zero leaves local alerts denied.
type TelegramConfig struct {
	BotToken        string `yaml:"bot_token"     env:"TELEGRAM_BOT_TOKEN" env-required:"true"`
	ChatID          int64  `yaml:"chat_id"       env:"TELEGRAM_CHAT_ID"`
	AllowedUsersRaw string `yaml:"allowed_users" env:"ALLOWED_USERS"`

	// AllowedUsers is parsed from AllowedUsersRaw by Validate.
	AllowedUsers []int64 `yaml:"-"`
}

// DatabaseConfig holds the local SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"DATABASE_PATH" env-default:"./data/notifier.db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// APIConfig holds upstream API settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"API_BASE_URL"`
	Token   string        `yaml:"token"    env:"API_TOKEN"`
	OwnerID string        `yaml:"owner_id" env:"OWNER_ID"`
	Timeout time.Duration `yaml:"timeout"  env:"HTTP_TIMEOUT" env-default:"30s"`
}

// ReminderConfig holds reminder scheduling settings.
type ReminderConfig struct {
	RescanInterval time.Duration `yaml:"rescan_interval" env:"RESCAN_INTERVAL"      env-default:"1h"`
	Days           int           `yaml:"days"            env:"REMINDER_DAYS"        env-default:"4"`
	RetentionDays  int           `yaml:"retention_days"  env:"DEDUP_RETENTION_DAYS" env-default:"7"`
	Timezone       string        `yaml:"timezone"        env:"TIMEZONE"             env-default:"Local"`

	// Location is resolved from Timezone by Validate.
	Location *time.Location `yaml:"-"`
}

// Retention returns the dedup retention as a duration.
func (r ReminderConfig) Retention() time.Duration {
	return time.Duration(r.RetentionDays) * 24 * time.Hour
}

// FeedConfig holds notification feed settings.
type FeedConfig struct {
	PageSize int `yaml:"page_size" env:"FEED_PAGE_SIZE" env-default:"10"`
}

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags).
// The YAML file path is determined by CONFIG_PATH env (fallback "./config.yaml").
// If the file does not exist and CONFIG_PATH was not set explicitly,
// configuration is loaded from ENV + defaults only.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.Telegram.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.Telegram.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
