// Package config handles application configuration from a config file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the application reads.
const EnvPrefix = "MAILRULES"

// Config holds the application configuration.
type Config struct {
	RulesPath    string
	DatabasePath string
	LogLevel     string

	Gmail      GmailConfig
	Processing ProcessingConfig
	Telegram   TelegramConfig
	HTTPAddr   string
}

// GmailConfig configures access to the mailbox.
type GmailConfig struct {
	ConfigDir  string
	MaxResults int64
	QueryLabel string
}

// ProcessingConfig configures rule runs.
type ProcessingConfig struct {
	BatchSize       int
	RateLimitPerSec float64
	MaxProcessTime  time.Duration
	Interval        time.Duration
}

// TelegramConfig configures the optional control bot.
type TelegramConfig struct {
	Token        string
	AllowedUsers []int64
	ChatID       int64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rules_path", "rules.json")
	v.SetDefault("database_path", "./data/emails.db")
	v.SetDefault("log_level", "info")

	v.SetDefault("gmail.config_dir", "~/.config/mailrules")
	v.SetDefault("gmail.max_results", 10)
	v.SetDefault("gmail.query_label", "INBOX")

	v.SetDefault("processing.batch_size", 50)
	v.SetDefault("processing.rate_limit_per_sec", 1.0)
	v.SetDefault("processing.max_process_time", "5m")
	v.SetDefault("processing.interval", "15m")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.allowed_users", "")
	v.SetDefault("telegram.chat_id", 0)

	v.SetDefault("http.addr", "")
}

// Load reads configuration. Precedence: environment > config file > defaults.
// path may be empty to skip the config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if v.InConfig("telegram.token") {
		return nil, fmt.Errorf("telegram.token is not allowed in config files (use %s_TELEGRAM_TOKEN)", EnvPrefix)
	}

	allowed, err := parseUserIDs(v.Get("telegram.allowed_users"))
	if err != nil {
		return nil, err
	}

	configDir, err := expandHome(v.GetString("gmail.config_dir"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RulesPath:    v.GetString("rules_path"),
		DatabasePath: v.GetString("database_path"),
		LogLevel:     v.GetString("log_level"),
		Gmail: GmailConfig{
			ConfigDir:  configDir,
			MaxResults: v.GetInt64("gmail.max_results"),
			QueryLabel: v.GetString("gmail.query_label"),
		},
		Processing: ProcessingConfig{
			BatchSize:       v.GetInt("processing.batch_size"),
			RateLimitPerSec: v.GetFloat64("processing.rate_limit_per_sec"),
			MaxProcessTime:  v.GetDuration("processing.max_process_time"),
			Interval:        v.GetDuration("processing.interval"),
		},
		Telegram: TelegramConfig{
			Token:        v.GetString("telegram.token"),
			AllowedUsers: allowed,
			ChatID:       v.GetInt64("telegram.chat_id"),
		},
		HTTPAddr: v.GetString("http.addr"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	p := cfg.Processing
	if p.BatchSize <= 0 {
		return fmt.Errorf("processing.batch_size must be positive, got %d", p.BatchSize)
	}
	if p.RateLimitPerSec <= 0 {
		return fmt.Errorf("processing.rate_limit_per_sec must be positive, got %v", p.RateLimitPerSec)
	}
	if p.MaxProcessTime <= 0 {
		return fmt.Errorf("processing.max_process_time must be positive, got %v", p.MaxProcessTime)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("processing.interval must be positive, got %v", p.Interval)
	}
	if cfg.Gmail.MaxResults <= 0 {
		return fmt.Errorf("gmail.max_results must be positive, got %d", cfg.Gmail.MaxResults)
	}
	return nil
}

// parseUserIDs accepts a list from a config file or a comma-separated
// string from the environment.
func parseUserIDs(raw any) ([]int64, error) {
	var parts []string
	switch v := raw.(type) {
	case nil:
	case string:
		parts = strings.Split(v, ",")
	case []any:
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
	case []string:
		parts = v
	case []int64:
		return v, nil
	default:
		return nil, fmt.Errorf("telegram.allowed_users: unsupported value %v", raw)
	}

	var ids []int64
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in telegram.allowed_users: %w", s, err)
		}
		ids = append(ids, uid)
	}
	return ids, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
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
