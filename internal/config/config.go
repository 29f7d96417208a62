// Package config provides YAML-based configuration loading for mailslot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the YAML file. A .env
// file in the working directory is loaded before they are read.
const (
	EnvTelegramToken = "MAILSLOT_TELEGRAM_TOKEN"
	EnvSlackToken    = "MAILSLOT_SLACK_BOT_TOKEN"
	EnvDiscordToken  = "MAILSLOT_DISCORD_BOT_TOKEN"
)

// Config is the top-level mailslot configuration, loaded from mailslot.yaml.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Admins    AdminsConfig    `yaml:"admins"`
	Channel   ChannelConfig   `yaml:"channel"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Media     MediaConfig     `yaml:"media"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Workers   int             `yaml:"workers"`
}

// TelegramConfig holds Bot API settings.
type TelegramConfig struct {
	Token          string  `yaml:"token"`
	PollTimeoutSec int     `yaml:"poll_timeout_sec"`
	SendRatePerSec float64 `yaml:"send_rate_per_sec"`
}

// AdminsConfig names the moderators. Primary gets the admin panel; both
// receive submission notifications.
type AdminsConfig struct {
	Primary   int64 `yaml:"primary"`
	Secondary int64 `yaml:"secondary"`
}

// ChannelConfig describes the public channel posts are published to and the
// chat whose membership gates /start.
type ChannelConfig struct {
	ID               string `yaml:"id"`
	SubscriptionChat string `yaml:"subscription_chat"`
	SubscriptionURL  string `yaml:"subscription_url"`
	Footer           string `yaml:"footer"`
	ChatLink         string `yaml:"chat_link"`
	ChannelLink      string `yaml:"channel_link"`
}

// StorageConfig locates the flat logs, downloaded media and the fallback video.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	MediaDir      string `yaml:"media_dir"`
	FallbackVideo string `yaml:"fallback_video"`
}

// DatabaseConfig selects the relational mirror.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	Path   string `yaml:"path"`   // sqlite file
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
}

// MediaConfig holds the optional S3 mirror for saved media.
type MediaConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config targets an S3-compatible bucket. An empty Bucket disables the mirror.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// LedgerConfig controls scheduled reconciliation.
type LedgerConfig struct {
	ReconcileCron string `yaml:"reconcile_cron"`
}

// DashboardConfig controls the read-only HTTP endpoints. Port 0 disables them.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// AlertsConfig mirrors admin warnings to an ops channel on Slack or Discord.
type AlertsConfig struct {
	Platform string        `yaml:"platform"` // "", "slack", "discord"
	Channel  string        `yaml:"channel"`
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack credentials for the alert sink.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord credentials for the alert sink.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// AdminIDs returns the deduplicated, non-zero administrator ids, primary first.
func (c *Config) AdminIDs() []int64 {
	ids := []int64{c.Admins.Primary}
	if c.Admins.Secondary != 0 && c.Admins.Secondary != c.Admins.Primary {
		ids = append(ids, c.Admins.Secondary)
	}
	return ids
}

// Load reads a YAML config file from path, applies environment overrides and
// returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}
	return parse(data, os.Getenv)
}

// loadEnvFile exports the variables of a dotenv file without overriding the
// environment. A missing file is the normal case and is not an error.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load %s: %w", path, err)
}

// Parse unmarshals YAML bytes into a validated Config. Environment
// overrides are not applied.
func Parse(data []byte) (*Config, error) {
	return parse(data, func(string) string { return "" })
}

func parse(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvTelegramToken); v != "" {
		c.Telegram.Token = v
	}
	if v := getenv(EnvSlackToken); v != "" {
		c.Alerts.Slack.BotToken = v
	}
	if v := getenv(EnvDiscordToken); v != "" {
		c.Alerts.Discord.BotToken = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Telegram.PollTimeoutSec == 0 {
		c.Telegram.PollTimeoutSec = 30
	}
	if c.Telegram.SendRatePerSec == 0 {
		c.Telegram.SendRatePerSec = 25
	}
	if c.Channel.SubscriptionChat == "" {
		c.Channel.SubscriptionChat = "@Mind4Not0Found4"
	}
	if c.Channel.SubscriptionURL == "" && strings.HasPrefix(c.Channel.SubscriptionChat, "@") {
		c.Channel.SubscriptionURL = "https://t.me/" + strings.TrimPrefix(c.Channel.SubscriptionChat, "@")
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.MediaDir == "" {
		c.Storage.MediaDir = "media"
	}
	if c.Storage.FallbackVideo == "" {
		c.Storage.FallbackVideo = "youra.mp4"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.Storage.DataDir, "bot.db")
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "mailslot"
		}
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required (or set "+EnvTelegramToken+")")
	}
	if c.Admins.Primary == 0 {
		errs = append(errs, "admins.primary is required")
	}
	if c.Channel.ID == "" {
		errs = append(errs, "channel.id is required")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	switch c.Alerts.Platform {
	case "":
	case "slack":
		if c.Alerts.Slack.BotToken == "" {
			errs = append(errs, "alerts.slack.bot_token is required for platform slack")
		}
	case "discord":
		if c.Alerts.Discord.BotToken == "" {
			errs = append(errs, "alerts.discord.bot_token is required for platform discord")
		}
	default:
		errs = append(errs, fmt.Sprintf("alerts.platform %q is not supported (slack, discord)", c.Alerts.Platform))
	}
	if c.Alerts.Platform != "" && c.Alerts.Channel == "" {
		errs = append(errs, "alerts.channel is required when alerts.platform is set")
	}
	if c.Dashboard.Port < 0 {
		errs = append(errs, "dashboard.port must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
