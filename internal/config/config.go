package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel          string                  `yaml:"log_level"`
	DataDir           string                  `yaml:"data_dir"`
	BotName           string                  `yaml:"bot_name"`
	Gateway           GatewayConfig           `yaml:"gateway"`
	Features          FeaturesConfig          `yaml:"features"`
	Reactions         []string                `yaml:"reactions"`
	AvailableEmojis   []string                `yaml:"available_emojis"`
	ReplyMessage      string                  `yaml:"reply_message"`
	BanProtection     BanProtectionConfig     `yaml:"ban_protection"`
	Filters           FiltersConfig           `yaml:"filters"`
	Logging           LoggingConfig           `yaml:"logging"`
	Archive           ArchiveConfig           `yaml:"archive"`
	Dashboard         DashboardConfig         `yaml:"dashboard"`
	Telegram          TelegramConfig          `yaml:"telegram"`
	ObservabilityHTTP ObservabilityHTTPConfig `yaml:"observability_http"`
}

type GatewayConfig struct {
	URL         string `yaml:"url"`   // e.g. "http://127.0.0.1:8085"
	Token       string `yaml:"token"` // bearer token
	SelfJID     string `yaml:"self_jid"`
	PollTimeout int    `yaml:"poll_timeout"` // seconds
	PhoneNumber string `yaml:"phone_number"` // for pairing-code login
}

type FeaturesConfig struct {
	AutoViewStatus  bool `yaml:"auto_view_status"`
	AutoLikeStatus  bool `yaml:"auto_like_status"`
	AutoReplyStatus bool `yaml:"auto_reply_status"`
}

type BanProtectionConfig struct {
	Enabled              bool         `yaml:"enabled"`
	MaxActionsPerHour    int          `yaml:"max_actions_per_hour"`
	MaxActionsPerDay     int          `yaml:"max_actions_per_day"`
	Delays               DelaysConfig `yaml:"delays"`
	SkipChance           float64      `yaml:"skip_chance"`
	ActiveHoursOnly      bool         `yaml:"active_hours_only"`
	ActiveHours          HoursRange   `yaml:"active_hours"`
	CooldownAfterActions int          `yaml:"cooldown_after_actions"`
	CooldownDuration     int          `yaml:"cooldown_duration"` // milliseconds
	DailyResetHour       int          `yaml:"daily_reset_hour"`
}

// DelaysConfig holds the pacing ranges in milliseconds.
type DelaysConfig struct {
	ViewMin  int `yaml:"view_min"`
	ViewMax  int `yaml:"view_max"`
	LikeMin  int `yaml:"like_min"`
	LikeMax  int `yaml:"like_max"`
	ReplyMin int `yaml:"reply_min"`
	ReplyMax int `yaml:"reply_max"`
}

type HoursRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

type FiltersConfig struct {
	ExcludeNumbers   []string `yaml:"exclude_numbers"`
	OnlyTheseNumbers []string `yaml:"only_these_numbers"`
}

type LoggingConfig struct {
	MaxLogs int `yaml:"max_logs"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	DBPath  string `yaml:"db_path"`
}

type DashboardConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Password  string `yaml:"password"`
	PublicURL string `yaml:"public_url"` // shown in .help replies
}

type TelegramConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Token        string  `yaml:"token"`
	ChatID       int64   `yaml:"chat_id"`
	Interval     int     `yaml:"interval"`      // status report interval in seconds
	AllowedUsers []int64 `yaml:"allowed_users"` // user IDs allowed in private chats
}

type ObservabilityHTTPConfig struct {
	Addr    string `yaml:"addr"`
	Pprof   bool   `yaml:"pprof"`
	Metrics bool   `yaml:"metrics"`
}

// DefaultReactions is the reaction pool used when none is configured.
var DefaultReactions = []string{"❤️", "😍", "🔥", "👍", "😂", "🎉", "💯", "🙌"}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{
		BotName: "Status Bot",
		Gateway: GatewayConfig{
			URL: "http://127.0.0.1:8085",
		},
		Features: FeaturesConfig{
			AutoViewStatus: true,
			AutoLikeStatus: true,
		},
		ReplyMessage: "Nice status! 🔥",
		BanProtection: BanProtectionConfig{
			Enabled:           true,
			MaxActionsPerHour: 30,
			MaxActionsPerDay:  200,
			Delays: DelaysConfig{
				ViewMin:  2000,
				ViewMax:  5000,
				LikeMin:  3000,
				LikeMax:  8000,
				ReplyMin: 10000,
				ReplyMax: 20000,
			},
			SkipChance:           0.15,
			ActiveHoursOnly:      true,
			ActiveHours:          HoursRange{Start: 7, End: 23},
			CooldownAfterActions: 10,
			CooldownDuration:     60000,
		},
		Dashboard: DashboardConfig{
			Enabled:  true,
			Listen:   ":3000",
			Password: "admin",
		},
		Archive: ArchiveConfig{
			Enabled: true,
		},
	}
	cfg.Reactions = append([]string(nil), DefaultReactions...)
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ApplyDefaults(filepath.Dir(path))
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields; relative paths are resolved against baseDir.
func (c *Config) ApplyDefaults(baseDir string) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(baseDir, "data")
	}
	if c.Gateway.PollTimeout == 0 {
		c.Gateway.PollTimeout = 30
	}
	if len(c.Reactions) == 0 {
		c.Reactions = append([]string(nil), DefaultReactions...)
	}
	if len(c.AvailableEmojis) == 0 {
		c.AvailableEmojis = append([]string(nil), c.Reactions...)
	}
	if c.ReplyMessage == "" {
		c.ReplyMessage = "Nice status! 🔥"
	}
	if c.Logging.MaxLogs == 0 {
		c.Logging.MaxLogs = 500
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = filepath.Join(baseDir, "downloads")
	}
	if c.Archive.DBPath == "" {
		c.Archive.DBPath = filepath.Join(c.DataDir, "archive.db")
	}
	if c.Dashboard.Listen == "" {
		c.Dashboard.Listen = ":3000"
	}
	if c.Telegram.Interval == 0 {
		c.Telegram.Interval = 3600
	}
}

// Validate rejects policies the admission controller cannot honour.
func (c *Config) Validate() error {
	bp := c.BanProtection
	if bp.MaxActionsPerHour < 0 || bp.MaxActionsPerDay < 0 {
		return fmt.Errorf("ban_protection: action limits must not be negative")
	}
	if bp.SkipChance < 0 || bp.SkipChance > 1 {
		return fmt.Errorf("ban_protection: skip_chance must be within [0, 1], got %v", bp.SkipChance)
	}
	for name, h := range map[string]int{
		"active_hours.start": bp.ActiveHours.Start,
		"active_hours.end":   bp.ActiveHours.End,
		"daily_reset_hour":   bp.DailyResetHour,
	} {
		if h < 0 || h > 23 {
			return fmt.Errorf("ban_protection: %s must be within 0..23, got %d", name, h)
		}
	}
	d := bp.Delays
	for name, r := range map[string][2]int{
		"view":  {d.ViewMin, d.ViewMax},
		"like":  {d.LikeMin, d.LikeMax},
		"reply": {d.ReplyMin, d.ReplyMax},
	} {
		if r[0] < 0 || r[1] < r[0] {
			return fmt.Errorf("ban_protection: delays.%s range [%d, %d] is invalid", name, r[0], r[1])
		}
	}
	if bp.CooldownAfterActions < 0 || bp.CooldownDuration < 0 {
		return fmt.Errorf("ban_protection: cooldown settings must not be negative")
	}
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway: url is required")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram: token is required")
	}
	if c.Dashboard.Enabled && c.Dashboard.Password == "" {
		return fmt.Errorf("dashboard: password is required")
	}
	return nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Redacted returns a copy with secrets obfuscated, for printing.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Gateway.Token = redact(cp.Gateway.Token)
	cp.Telegram.Token = redact(cp.Telegram.Token)
	cp.Dashboard.Password = redact(cp.Dashboard.Password)
	return &cp
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func (c *Config) ParseLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Cooldown returns the configured cooldown as a time.Duration.
func (bp BanProtectionConfig) Cooldown() time.Duration {
	return time.Duration(bp.CooldownDuration) * time.Millisecond
}

// TelegramInterval returns the status push period.
func (c *Config) TelegramInterval() time.Duration {
	return time.Duration(c.Telegram.Interval) * time.Second
}
