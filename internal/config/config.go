package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"crypto-alerts/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. CRYPTOALERTS_POLLER_PRICE_INTERVAL.
const EnvPrefix = "CRYPTOALERTS"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Price    PriceConfig    `mapstructure:"price"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Bot      BotConfig      `mapstructure:"bot"`
	Digest   DigestConfig   `mapstructure:"digest"`
	Wallets  WalletsConfig  `mapstructure:"wallets"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	IDs      IDsConfig      `mapstructure:"ids"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects SQLite (default) or Postgres.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// PollerConfig governs the price and alert-check cadence.
type PollerConfig struct {
	PriceInterval     time.Duration `mapstructure:"price_interval"`
	AlertInterval     time.Duration `mapstructure:"alert_interval"`
	AlignToBucket     bool          `mapstructure:"align_to_bucket"`
	StartupDelay      time.Duration `mapstructure:"startup_delay"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	TrackedSymbols    []string      `mapstructure:"tracked_symbols"`
	BaselinePolicy    string        `mapstructure:"baseline_policy"`
	SeedZeroBaselines bool          `mapstructure:"seed_zero_baselines"`
	MaxPending        int           `mapstructure:"max_pending"`
	AdvisoryLockKey   int64         `mapstructure:"advisory_lock_key"`
}

// PriceConfig picks and configures the price provider.
type PriceConfig struct {
	Provider      string              `mapstructure:"provider"`
	CoinMarketCap CoinMarketCapConfig `mapstructure:"coinmarketcap"`
	CoinPaprika   CoinPaprikaConfig   `mapstructure:"coinpaprika"`
}

// CoinMarketCapConfig configures the CoinMarketCap quotes endpoint.
type CoinMarketCapConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// CoinPaprikaConfig configures the CoinPaprika client.
type CoinPaprikaConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

// TelegramConfig describes the Telegram notification channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// NATSConfig describes the NATS notification channel.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// BotConfig configures the inbound Telegram command bot.
type BotConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Token          string        `mapstructure:"token"`
	Debug          bool          `mapstructure:"debug"`
	UpdatesTimeout time.Duration `mapstructure:"updates_timeout"`
}

// DigestConfig schedules the periodic market digest.
type DigestConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Schedule         string        `mapstructure:"schedule"`
	Owner            string        `mapstructure:"owner"`
	Window           time.Duration `mapstructure:"window"`
	MoveThresholdPct float64       `mapstructure:"move_threshold_pct"`
}

// WalletsConfig configures on-chain wallet snapshots.
type WalletsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RPCURL        string        `mapstructure:"rpc_url"`
	Addresses     []string      `mapstructure:"addresses"`
	Interval      time.Duration `mapstructure:"interval"`
	IncludeTokens bool          `mapstructure:"include_tokens"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// IDsConfig configures snowflake id generation. The run service and the CLI
// write to the same database, so each gets its own node.
type IDsConfig struct {
	Node    int64 `mapstructure:"node"`
	CLINode int64 `mapstructure:"cli_node"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv exports variables from a .env file without overriding the
// real environment. A missing file is fine.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cryptoalerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/cryptoalerts.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.busy_timeout", "5s")

	v.SetDefault("poller.price_interval", "15m")
	v.SetDefault("poller.alert_interval", "1m")
	v.SetDefault("poller.align_to_bucket", false)
	v.SetDefault("poller.startup_delay", "0s")
	v.SetDefault("poller.fetch_timeout", "10s")
	v.SetDefault("poller.tracked_symbols", []string{"BTC", "ETH"})
	v.SetDefault("poller.baseline_policy", "trigger")
	v.SetDefault("poller.seed_zero_baselines", false)
	v.SetDefault("poller.max_pending", 1000)
	v.SetDefault("poller.advisory_lock_key", int64(0x63727970))

	v.SetDefault("price.provider", "coinmarketcap")
	v.SetDefault("price.coinmarketcap.api_key", "")
	v.SetDefault("price.coinmarketcap.base_url", "https://pro-api.coinmarketcap.com")
	v.SetDefault("price.coinmarketcap.timeout", "10s")
	v.SetDefault("price.coinmarketcap.user_agent", "")
	v.SetDefault("price.coinpaprika.api_key", "")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.cooldown", "0s")
	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.nats.url", "")
	v.SetDefault("alerting.nats.subject", "cryptoalerts.notifications")

	v.SetDefault("bot.enabled", false)
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.debug", false)
	v.SetDefault("bot.updates_timeout", "60s")

	v.SetDefault("digest.enabled", false)
	v.SetDefault("digest.schedule", "0 */4 * * *")
	v.SetDefault("digest.owner", "digest")
	v.SetDefault("digest.window", "4h")
	v.SetDefault("digest.move_threshold_pct", 5.0)

	v.SetDefault("wallets.enabled", false)
	v.SetDefault("wallets.rpc_url", "")
	v.SetDefault("wallets.addresses", []string{})
	v.SetDefault("wallets.interval", "5m")
	v.SetDefault("wallets.include_tokens", false)
	v.SetDefault("wallets.timeout", "15s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9102")

	v.SetDefault("ids.node", 1)
	v.SetDefault("ids.cli_node", 2)

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite":
	case "postgres", "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}

	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Poller.PriceInterval <= 0 {
		return fmt.Errorf("poller.price_interval must be greater than zero")
	}
	if c.Poller.AlertInterval <= 0 {
		return fmt.Errorf("poller.alert_interval must be greater than zero")
	}
	if c.Poller.FetchTimeout <= 0 {
		return fmt.Errorf("poller.fetch_timeout must be greater than zero")
	}
	if c.Poller.MaxPending < 0 {
		return fmt.Errorf("poller.max_pending cannot be negative")
	}
	switch strings.ToLower(c.Poller.BaselinePolicy) {
	case "", "trigger", "poll":
	default:
		return fmt.Errorf("poller.baseline_policy must be trigger or poll, got %q", c.Poller.BaselinePolicy)
	}

	switch strings.ToLower(c.Price.Provider) {
	case "coinmarketcap", "cmc", "coinpaprika":
	default:
		return fmt.Errorf("price.provider must be coinmarketcap or coinpaprika, got %q", c.Price.Provider)
	}

	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	for _, ch := range c.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case "log", "telegram", "nats":
		default:
			return fmt.Errorf("alerting.channels: unknown channel %q", ch)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.HasChannel("nats") && c.Alerting.NATS.URL == "" {
		return fmt.Errorf("alerting.nats.url is required when the nats channel is enabled")
	}

	if c.Bot.Enabled && c.Bot.Token == "" {
		return fmt.Errorf("bot.token is required")
	}

	if c.Digest.Enabled {
		if _, err := cron.ParseStandard(c.Digest.Schedule); err != nil {
			return fmt.Errorf("digest.schedule: %w", err)
		}
		if c.Digest.Window <= 0 {
			return fmt.Errorf("digest.window must be greater than zero")
		}
	}

	if c.Wallets.Enabled {
		if c.Wallets.RPCURL == "" {
			return fmt.Errorf("wallets.rpc_url is required")
		}
		if c.Wallets.Interval <= 0 {
			return fmt.Errorf("wallets.interval must be greater than zero")
		}
		if len(c.Wallets.Addresses) == 0 {
			return fmt.Errorf("wallets.addresses must not be empty")
		}
	}
	for _, addr := range c.Wallets.Addresses {
		if !common.IsHexAddress(strings.TrimSpace(addr)) {
			return fmt.Errorf("wallets.addresses: invalid address %q", addr)
		}
	}

	if c.IDs.Node < 0 || c.IDs.Node > 1023 {
		return fmt.Errorf("ids.node must be between 0 and 1023")
	}
	if c.IDs.CLINode < 0 || c.IDs.CLINode > 1023 {
		return fmt.Errorf("ids.cli_node must be between 0 and 1023")
	}
	if c.IDs.CLINode == c.IDs.Node {
		return fmt.Errorf("ids.cli_node must differ from ids.node")
	}
	return nil
}

// HasChannel reports whether a notification channel is routed.
func (c *Config) HasChannel(name string) bool {
	for _, ch := range c.Alerting.Channels {
		if strings.EqualFold(strings.TrimSpace(ch), name) {
			return true
		}
	}
	return false
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
