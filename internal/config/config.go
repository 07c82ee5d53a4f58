// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Ledger drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Award     AwardConfig     `mapstructure:"award"`
	Market    MarketConfig    `mapstructure:"market"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Host      HostConfig      `mapstructure:"host"`
	Bot       BotConfig       `mapstructure:"bot"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Log       LogConfig       `mapstructure:"log"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// MonitorConfig holds the observation poller settings.
type MonitorConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	DetectionRadius float64       `mapstructure:"detection_radius"`
	MaxSessionAge   time.Duration `mapstructure:"max_session_age"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	ScoreLabels     []string      `mapstructure:"score_labels"`
	// TriggerItems are substrings of a held item kind that mark the player as
	// playing the minigame.
	TriggerItems []string `mapstructure:"trigger_items"`
}

// AwardConfig holds award coordination settings.
type AwardConfig struct {
	AntiSpamDelay    time.Duration `mapstructure:"anti_spam_delay"`
	DoublePermission string        `mapstructure:"double_permission"`
	Multiplier       float64       `mapstructure:"multiplier"`
	HintDuration     time.Duration `mapstructure:"hint_duration"`
}

// MarketConfig holds storefront settings and the catalog.
type MarketConfig struct {
	Enabled                 bool                `mapstructure:"enabled"`
	CooldownAfterRoundStart time.Duration       `mapstructure:"cooldown_after_round_start"`
	HintDuration            time.Duration       `mapstructure:"hint_duration"`
	Items                   []CatalogItemConfig `mapstructure:"items"`
}

// CatalogItemConfig is one configured catalog entry.
// Exactly one of ItemType or AmmoType should be set.
type CatalogItemConfig struct {
	Code        string `mapstructure:"code"`
	DisplayName string `mapstructure:"display_name"`
	Price       int64  `mapstructure:"price"`
	ItemType    string `mapstructure:"item_type"`
	AmmoType    string `mapstructure:"ammo_type"`
	AmmoAmount  int    `mapstructure:"ammo_amount"`
	Enabled     *bool  `mapstructure:"enabled"`
}

// IsEnabled reports whether the entry is enabled. Entries are enabled unless
// explicitly switched off.
func (c CatalogItemConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// LedgerConfig selects the durable store for balances.
type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// HTTPConfig holds the bridge/API listener configuration.
type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// CommandsPerMinute and CommandBurst throttle commands per player.
	// Zero disables throttling.
	CommandsPerMinute float64 `mapstructure:"commands_per_minute"`
	CommandBurst      int     `mapstructure:"command_burst"`
}

// HostConfig describes how to reach the game host.
type HostConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SnapshotMaxAge time.Duration `mapstructure:"snapshot_max_age"`
}

// BotConfig holds Telegram bot configuration. An empty token disables the bot.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MessagesConfig holds every user-facing template. Placeholders are
// positional: {0}, {1}, ...
type MessagesConfig struct {
	SystemEnabled        string `mapstructure:"system_enabled"`
	MonitoringStarted    string `mapstructure:"monitoring_started"`
	MonitoringStopped    string `mapstructure:"monitoring_stopped"`
	GameEnded            string `mapstructure:"game_ended"`
	GameEndedDoubled     string `mapstructure:"game_ended_doubled"`
	CurrentPoints        string `mapstructure:"current_points"`
	PurchaseSuccessful   string `mapstructure:"purchase_successful"`
	PurchaseFailed       string `mapstructure:"purchase_failed"`
	InvalidItem          string `mapstructure:"invalid_item"`
	InsufficientPoints   string `mapstructure:"insufficient_points"`
	ItemPurchased        string `mapstructure:"item_purchased"`
	InventoryFull        string `mapstructure:"inventory_full"`
	MarketCooldownActive string `mapstructure:"market_cooldown_active"`
	MarketDisabled       string `mapstructure:"market_disabled"`
	ShopCommandDesc      string `mapstructure:"shop_command_desc"`
	ScoreCommandDesc     string `mapstructure:"score_command_desc"`
	ScoreBoard           string `mapstructure:"score_board"`
	ScoreBoardLine       string `mapstructure:"score_board_line"`
	PlayerOnlyCommand    string `mapstructure:"player_only"`
	ShopTitle            string `mapstructure:"shop_title"`
	ShopInstructions     string `mapstructure:"shop_instructions"`
	ShopEntry            string `mapstructure:"shop_entry"`
	ShopExample          string `mapstructure:"shop_example"`
	QuickShopTitle       string `mapstructure:"quick_shop_title"`
	QuickShopEntry       string `mapstructure:"quick_shop_entry"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v, err := readViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. MONITOR_INTERVAL, LEDGER_DRIVER, BOT_TOKEN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func readViper(configPath string) (*viper.Viper, error) {
	v := newViper(configPath)

	// Config file is optional - defaults and env vars can provide everything
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would make the service misbehave.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.Monitor.MaxSessionAge <= 0 {
		return fmt.Errorf("monitor.max_session_age must be positive, got %s", c.Monitor.MaxSessionAge)
	}
	if c.Monitor.DetectionRadius <= 0 {
		return fmt.Errorf("monitor.detection_radius must be positive, got %v", c.Monitor.DetectionRadius)
	}
	if c.Award.Multiplier < 0 {
		return fmt.Errorf("award.multiplier must not be negative, got %v", c.Award.Multiplier)
	}
	switch c.Ledger.Driver {
	case DriverFile, DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver)
	}
	seen := make(map[string]bool, len(c.Market.Items))
	for _, item := range c.Market.Items {
		code := strings.ToLower(strings.TrimSpace(item.Code))
		if code == "" {
			return fmt.Errorf("market item %q has an empty code", item.DisplayName)
		}
		if seen[code] {
			return fmt.Errorf("duplicate market item code %q", code)
		}
		seen[code] = true
		if item.Price < 0 {
			return fmt.Errorf("market item %q has a negative price", code)
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Monitor defaults
	v.SetDefault("monitor.interval", "500ms")
	v.SetDefault("monitor.detection_radius", 5.0)
	v.SetDefault("monitor.max_session_age", "60s")
	v.SetDefault("monitor.stale_after", "30s")
	v.SetDefault("monitor.score_labels", []string{"Score:", "SKOR:", "Puan:"})
	v.SetDefault("monitor.trigger_items", []string{"Keycard", "Card"})

	// Award defaults
	v.SetDefault("award.anti_spam_delay", "5s")
	v.SetDefault("award.double_permission", "snake.doublexp")
	v.SetDefault("award.multiplier", 2.0)
	v.SetDefault("award.hint_duration", "8s")

	// Market defaults
	v.SetDefault("market.enabled", true)
	v.SetDefault("market.cooldown_after_round_start", "180s")
	v.SetDefault("market.hint_duration", "4s")
	v.SetDefault("market.items", defaultItems())

	// Ledger defaults
	v.SetDefault("ledger.driver", DriverFile)
	v.SetDefault("ledger.path", "snake_scores.json")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "snake")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "snake")
	v.SetDefault("database.pool_size", 4)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// HTTP and host bridge defaults
	v.SetDefault("http.addr", "127.0.0.1:8077")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.request_timeout", "5s")
	v.SetDefault("http.commands_per_minute", 30)
	v.SetDefault("http.command_burst", 5)
	v.SetDefault("host.base_url", "")
	v.SetDefault("host.token", "")
	v.SetDefault("host.timeout", "2s")
	v.SetDefault("host.snapshot_max_age", "3s")

	// Bot defaults. An empty token leaves the bot off.
	v.SetDefault("bot.token", "")
	v.SetDefault("admin.ids", []int64{})
	v.SetDefault("whitelist.chats", []int64{})

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	setMessageDefaults(v)
}

func defaultItems() []map[string]any {
	return []map[string]any{
		{"code": "medkit", "display_name": "Medkit", "price": 10, "item_type": "Medkit"},
		{"code": "ammo556", "display_name": "5.56 Ammo", "price": 15, "ammo_type": "Nato556", "ammo_amount": 60},
		{"code": "flashlight", "display_name": "Flashlight", "price": 5, "item_type": "Flashlight"},
		{"code": "keycard", "display_name": "Scientist Keycard", "price": 25, "item_type": "KeycardScientist"},
		{"code": "grenade", "display_name": "Grenade", "price": 30, "item_type": "GrenadeHE"},
		{"code": "scp500", "display_name": "SCP-500", "price": 50, "item_type": "SCP500"},
		{"code": "armor", "display_name": "Armor", "price": 35, "item_type": "ArmorCombat"},
		{"code": "radio", "display_name": "Radio", "price": 8, "item_type": "Radio"},
	}
}

func setMessageDefaults(v *viper.Viper) {
	v.SetDefault("messages.system_enabled", "Snake Market System enabled!")
	v.SetDefault("messages.monitoring_started", "Snake game monitoring started")
	v.SetDefault("messages.monitoring_stopped", "Snake game monitoring stopped")
	v.SetDefault("messages.game_ended", "Snake Game Ended!\nYou earned {0} points!\nTotal points: {1}\nUse .shop to see items!")
	v.SetDefault("messages.game_ended_doubled", "Snake Game Ended! (2X XP)\nYou earned {0} points (doubled from {1})!\nTotal points: {2}\nUse .shop to see items!")
	v.SetDefault("messages.current_points", "Current points: {0}\n\n{1}\n\nFor detailed list: .shop")
	v.SetDefault("messages.purchase_successful", "Purchase successful!")
	v.SetDefault("messages.purchase_failed", "Purchase failed!\nFor valid item codes: .shop")
	v.SetDefault("messages.invalid_item", "Invalid item: '{0}'!\nUse .shop command to see items.")
	v.SetDefault("messages.insufficient_points", "Insufficient points!\nRequired: {0} points\nCurrent: {1} points")
	v.SetDefault("messages.item_purchased", "{0} purchased!\nRemaining points: {1}")
	v.SetDefault("messages.inventory_full", "Could not give item! Inventory might be full.")
	v.SetDefault("messages.market_cooldown_active", "Market is on cooldown!\nTime remaining: {0} seconds\nMarket will be available after round start cooldown.")
	v.SetDefault("messages.market_disabled", "The market is closed.")
	v.SetDefault("messages.shop_command_desc", "Buy items with Snake points")
	v.SetDefault("messages.score_command_desc", "View Snake scores")
	v.SetDefault("messages.score_board", "SNAKE SCOREBOARD\n\nYour points: {0}\n\nTop scores:\n")
	v.SetDefault("messages.score_board_line", "{0}. {1}: {2} points\n")
	v.SetDefault("messages.player_only", "Only players can use this command!")
	v.SetDefault("messages.shop_title", "SNAKE SHOP\n")
	v.SetDefault("messages.shop_instructions", "To buy: .shop <item_code>\n\n")
	v.SetDefault("messages.shop_entry", "- {0}\n  Code: {1} | Price: {2} points\n\n")
	v.SetDefault("messages.shop_example", "Example usage:\n.shop medkit\n.shop scp500\n.shop armor")
	v.SetDefault("messages.quick_shop_title", "Quick Shop List:\n\n")
	v.SetDefault("messages.quick_shop_entry", "{0} - {1} ({2}p)\n")
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
