package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	VenueCEX = "cex"
	VenueDEX = "dex"
)

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	Venue      string           `yaml:"venue"`
	CEX        CEXConfig        `yaml:"cex"`
	DEX        DEXConfig        `yaml:"dex"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Orders     OrdersConfig     `yaml:"orders"`
	PriceFeed  PriceFeedConfig  `yaml:"price_feed"`
	Contracts  ContractsConfig  `yaml:"contracts"`
	Journal    JournalConfig    `yaml:"journal"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type CEXConfig struct {
	BaseURL      string        `yaml:"base_url"`
	DemoBaseURL  string        `yaml:"demo_base_url"`
	APIKey       string        `yaml:"api_key"`
	APISecret    string        `yaml:"api_secret"`
	Passphrase   string        `yaml:"passphrase"`
	Locale       string        `yaml:"locale"`
	Timeout      time.Duration `yaml:"timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// HasCredentials reports whether all three signing credentials are present.
func (c CEXConfig) HasCredentials() bool {
	return c.APIKey != "" && c.APISecret != "" && c.Passphrase != ""
}

type DEXConfig struct {
	BaseURL        string        `yaml:"base_url"`
	WSURL          string        `yaml:"ws_url"`
	WalletAddress  string        `yaml:"wallet_address"`
	PrivateKey     string        `yaml:"private_key"`
	VaultAddress   string        `yaml:"vault_address"`
	Testnet        bool          `yaml:"testnet"`
	Timeout        time.Duration `yaml:"timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MarketSlippage float64       `yaml:"market_slippage"`
}

func (c DEXConfig) HasCredentials() bool {
	return c.WalletAddress != "" && c.PrivateKey != ""
}

type GuardrailsConfig struct {
	Cooldown       time.Duration `yaml:"cooldown"`
	MaxPartySize   int           `yaml:"max_party_size"`
	MinimumReserve float64       `yaml:"minimum_reserve"`
}

type OrdersConfig struct {
	DemoMode          bool    `yaml:"demo_mode"`
	DemoEnergy        float64 `yaml:"demo_energy"`
	EnergyScale       float64 `yaml:"energy_scale"`
	EnergySource      string  `yaml:"energy_source"`
	MarginMode        string  `yaml:"margin_mode"`
	EmbedStopLoss     *bool   `yaml:"embed_stop_loss"`
	ShowEnergyNumbers *bool   `yaml:"show_energy_numbers"`
	DefaultLevel      int     `yaml:"default_level"`
}

func (c OrdersConfig) EmbedStopLossValue() bool {
	return c.EmbedStopLoss == nil || *c.EmbedStopLoss
}

func (c OrdersConfig) ShowEnergyNumbersValue() bool {
	return c.ShowEnergyNumbers == nil || *c.ShowEnergyNumbers
}

type PriceFeedConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	PinnedBases []string      `yaml:"pinned_bases"`
}

type ContractsConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type JournalConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	Capacity   int    `yaml:"capacity"`
}

type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (c MetricsConfig) EnabledValue() bool {
	return c.Enabled != nil && *c.Enabled
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

// TradingLocked is true when live trading has no credentials to sign with.
func (c *Config) TradingLocked() bool {
	if c.Orders.DemoMode {
		return false
	}
	return !c.HasCredentials()
}

func (c *Config) HasCredentials() bool {
	if c.Venue == VenueDEX {
		return c.DEX.HasCredentials()
	}
	return c.CEX.HasCredentials()
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 50
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 5
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 14
		}
	}
	cfg.Venue = strings.ToLower(strings.TrimSpace(cfg.Venue))
	if cfg.Venue == "" {
		cfg.Venue = VenueCEX
	}
	if cfg.CEX.BaseURL == "" {
		cfg.CEX.BaseURL = "https://api.bitget.com"
	}
	if cfg.CEX.DemoBaseURL == "" {
		cfg.CEX.DemoBaseURL = "https://demo-openapi.bitget.com"
	}
	if cfg.CEX.Locale == "" {
		cfg.CEX.Locale = "en-US"
	}
	if cfg.CEX.Timeout == 0 {
		cfg.CEX.Timeout = 10 * time.Second
	}
	if cfg.CEX.ProbeTimeout == 0 {
		cfg.CEX.ProbeTimeout = 3 * time.Second
	}
	if cfg.DEX.BaseURL == "" {
		if cfg.DEX.Testnet {
			cfg.DEX.BaseURL = "https://api.hyperliquid-testnet.xyz"
		} else {
			cfg.DEX.BaseURL = "https://api.hyperliquid.xyz"
		}
	}
	if cfg.DEX.WSURL == "" {
		cfg.DEX.WSURL = deriveWSURL(cfg.DEX.BaseURL)
	}
	if cfg.DEX.Timeout == 0 {
		cfg.DEX.Timeout = 10 * time.Second
	}
	if cfg.DEX.ReconnectDelay == 0 {
		cfg.DEX.ReconnectDelay = 3 * time.Second
	}
	if cfg.DEX.PingInterval == 0 {
		cfg.DEX.PingInterval = 20 * time.Second
	}
	if cfg.DEX.MarketSlippage == 0 {
		cfg.DEX.MarketSlippage = 0.05
	}
	if cfg.Guardrails.Cooldown == 0 {
		cfg.Guardrails.Cooldown = 300 * time.Second
	}
	if cfg.Guardrails.MaxPartySize == 0 {
		cfg.Guardrails.MaxPartySize = 6
	}
	if cfg.Guardrails.MinimumReserve == 0 {
		cfg.Guardrails.MinimumReserve = 25
	}
	if cfg.Orders.DemoEnergy == 0 {
		cfg.Orders.DemoEnergy = 1000
	}
	if cfg.Orders.EnergyScale == 0 {
		cfg.Orders.EnergyScale = 1000
	}
	cfg.Orders.EnergySource = strings.ToLower(strings.TrimSpace(cfg.Orders.EnergySource))
	if cfg.Orders.EnergySource == "" {
		cfg.Orders.EnergySource = "perp"
	}
	cfg.Orders.MarginMode = strings.ToLower(strings.TrimSpace(cfg.Orders.MarginMode))
	if cfg.Orders.MarginMode == "" {
		cfg.Orders.MarginMode = "crossed"
	}
	if cfg.Orders.EmbedStopLoss == nil {
		enabled := true
		cfg.Orders.EmbedStopLoss = &enabled
	}
	if cfg.Orders.ShowEnergyNumbers == nil {
		enabled := true
		cfg.Orders.ShowEnergyNumbers = &enabled
	}
	if cfg.Orders.DefaultLevel == 0 {
		cfg.Orders.DefaultLevel = 1
	}
	if cfg.PriceFeed.Interval == 0 {
		cfg.PriceFeed.Interval = 3 * time.Second
	}
	if cfg.PriceFeed.Timeout == 0 {
		cfg.PriceFeed.Timeout = 2 * time.Second
	}
	if cfg.PriceFeed.Retries == 0 {
		cfg.PriceFeed.Retries = 2
	}
	if len(cfg.PriceFeed.PinnedBases) == 0 {
		cfg.PriceFeed.PinnedBases = []string{"BTC", "ETH", "SOL", "XRP", "DOGE", "HYPE", "AVAX", "SUI", "BNB", "WLD"}
	}
	if cfg.Contracts.TTL == 0 {
		cfg.Contracts.TTL = 60 * time.Second
	}
	if cfg.Journal.SQLitePath == "" {
		cfg.Journal.SQLitePath = ":memory:"
	}
	if cfg.Journal.Capacity == 0 {
		cfg.Journal.Capacity = 50
	}
	if cfg.Audit.Schema == "" {
		cfg.Audit.Schema = "public"
	}
	if cfg.Audit.QueueSize == 0 {
		cfg.Audit.QueueSize = 256
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("POKEDESK_VENUE"); v != "" {
		cfg.Venue = v
	}
	if v := firstEnv("POKEDESK_DEMO"); v != "" {
		if demo, err := strconv.ParseBool(v); err == nil {
			cfg.Orders.DemoMode = demo
		}
	}
	if v := firstEnv("CEX_API_KEY", "BITGET_API_KEY"); v != "" {
		cfg.CEX.APIKey = v
	}
	if v := firstEnv("CEX_API_SECRET", "BITGET_API_SECRET", "BITGET_SECRET_KEY"); v != "" {
		cfg.CEX.APISecret = v
	}
	if v := firstEnv("CEX_PASSPHRASE", "BITGET_PASSPHRASE"); v != "" {
		cfg.CEX.Passphrase = v
	}
	if v := firstEnv("DEX_WALLET_ADDRESS", "HL_WALLET_ADDRESS", "HYPERLIQUID_WALLET_ADDRESS"); v != "" {
		cfg.DEX.WalletAddress = v
	}
	if v := firstEnv("DEX_PRIVATE_KEY", "HL_PRIVATE_KEY", "HYPERLIQUID_PRIVATE_KEY"); v != "" {
		cfg.DEX.PrivateKey = v
	}
	if v := firstEnv("DEX_TESTNET", "HYPERLIQUID_TESTNET"); v != "" {
		if testnet, err := strconv.ParseBool(v); err == nil {
			cfg.DEX.Testnet = testnet
		}
	}
	if v := firstEnv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := firstEnv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := firstEnv("AUDIT_DSN"); v != "" {
		cfg.Audit.DSN = v
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func validate(cfg *Config) error {
	if cfg.Venue != VenueCEX && cfg.Venue != VenueDEX {
		return errors.New("venue must be cex or dex")
	}
	if cfg.Guardrails.Cooldown < 0 {
		return errors.New("guardrails.cooldown must be >= 0")
	}
	if cfg.Guardrails.MaxPartySize < 0 {
		return errors.New("guardrails.max_party_size must be >= 0")
	}
	if cfg.Guardrails.MinimumReserve < 0 {
		return errors.New("guardrails.minimum_reserve must be >= 0")
	}
	if cfg.Orders.EnergySource != "perp" && cfg.Orders.EnergySource != "total" {
		return errors.New("orders.energy_source must be perp or total")
	}
	if cfg.Orders.MarginMode != "crossed" && cfg.Orders.MarginMode != "isolated" {
		return errors.New("orders.margin_mode must be crossed or isolated")
	}
	if cfg.Orders.EnergyScale <= 0 {
		return errors.New("orders.energy_scale must be > 0")
	}
	if cfg.Orders.DefaultLevel < 1 {
		return errors.New("orders.default_level must be >= 1")
	}
	if cfg.PriceFeed.Interval < 0 || cfg.PriceFeed.Timeout < 0 || cfg.PriceFeed.Retries < 0 {
		return errors.New("price_feed settings must be >= 0")
	}
	if cfg.Contracts.TTL < 0 {
		return errors.New("contracts.ttl must be >= 0")
	}
	if cfg.DEX.MarketSlippage < 0 || cfg.DEX.MarketSlippage >= 1 {
		return errors.New("dex.market_slippage must be in [0, 1)")
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Audit.Enabled && strings.TrimSpace(cfg.Audit.DSN) == "" {
		return errors.New("audit.dsn is required when audit is enabled")
	}
	return nil
}

func deriveWSURL(restURL string) string {
	base := strings.TrimRight(restURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return base + "/ws"
	}
}
