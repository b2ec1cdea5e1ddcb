// Package config loads the service configuration from YAML, an optional .env
// file and environment variables.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/notifier"
	"github.com/rxtech-lab/argo-alpaca/internal/stream"
	"github.com/rxtech-lab/argo-alpaca/internal/trading/executor"
	tradingprovider "github.com/rxtech-lab/argo-alpaca/internal/trading/provider"
	"github.com/rxtech-lab/argo-alpaca/internal/version"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"github.com/rxtech-lab/argo-alpaca/pkg/schema"
	"gopkg.in/yaml.v3"
)

const (
	EnvAPIKeyID     = "APCA_API_KEY_ID"
	EnvAPISecretKey = "APCA_API_SECRET_KEY"
	EnvEnvironment  = "APCA_ENV"
	EnvNATSURL      = "ARGO_NATS_URL"

	EnvironmentPaper = "paper"
	EnvironmentLive  = "live"

	RepositoryMemory = "memory"
	RepositoryDuckDB = "duckdb"

	defaultMarketDataURL       = "wss://stream.data.alpaca.markets/v2/iex"
	defaultPaperTradingStream  = "wss://paper-api.alpaca.markets/stream"
	defaultLiveTradingStream   = "wss://api.alpaca.markets/stream"
	defaultNATSSubjectPrefix   = "argo.alpaca"
	defaultOpsAddress          = ":9090"
	defaultStatusInterval      = 30 * time.Second
	defaultHandshakeTimeout    = 10 * time.Second
	defaultWriteTimeout        = 5 * time.Second
	defaultPublishTimeout      = 5 * time.Second
	defaultNATSConnectTimeout  = 5 * time.Second
	defaultNATSReconnectWait   = 2 * time.Second
	defaultNATSMaxReconnects   = 60
	defaultRepositoryDuckDBDir = "data/orders.duckdb"
)

type Config struct {
	// Version is the engine version the file was written for. Empty skips the check.
	Version string `yaml:"version" json:"version,omitempty"`

	// Environment selects the paper or live brokerage endpoints.
	Environment string                               `yaml:"environment" json:"environment" validate:"oneof=paper live" jsonschema:"enum=paper,enum=live,default=paper"`
	Alpaca      tradingprovider.AlpacaProviderConfig `yaml:"alpaca" json:"alpaca"`
	Streams     StreamsConfig                        `yaml:"streams" json:"streams"`
	Batcher     stream.BatcherConfig                 `yaml:"batcher" json:"batcher"`
	Executor    ExecutorConfig                       `yaml:"executor" json:"executor"`
	Repository  RepositoryConfig                     `yaml:"repository" json:"repository"`
	Notifier    NotifierConfig                       `yaml:"notifier" json:"notifier"`
	Logging     logger.Config                        `yaml:"logging" json:"logging"`
	Ops         OpsConfig                            `yaml:"ops" json:"ops"`
	Symbols     SymbolsConfig                        `yaml:"symbols" json:"symbols"`
	Session     SessionConfig                        `yaml:"session" json:"session"`
	Prefetch    PrefetchConfig                       `yaml:"prefetch" json:"prefetch"`
}

type StreamsConfig struct {
	MarketDataURL string `yaml:"market_data_url" json:"market_data_url" validate:"required,url"`
	// TradingURL defaults to the trading stream of the selected environment.
	TradingURL          string                 `yaml:"trading_url" json:"trading_url,omitempty" validate:"omitempty,url"`
	HandshakeTimeout    time.Duration          `yaml:"handshake_timeout" json:"handshake_timeout" validate:"gt=0" jsonschema:"default=10s"`
	WriteTimeout        time.Duration          `yaml:"write_timeout" json:"write_timeout" validate:"gt=0" jsonschema:"default=5s"`
	HealthCheckInterval time.Duration          `yaml:"health_check_interval" json:"health_check_interval" validate:"gt=0" jsonschema:"default=10s"`
	HealthCheckTimeout  time.Duration          `yaml:"health_check_timeout" json:"health_check_timeout" validate:"gtefield=HealthCheckInterval" jsonschema:"default=60s"`
	PingInterval        time.Duration          `yaml:"ping_interval" json:"ping_interval" validate:"gte=0" jsonschema:"default=20s"`
	Reconnect           stream.ReconnectConfig `yaml:"reconnect" json:"reconnect"`
	RecentTrades        int                    `yaml:"recent_trades" json:"recent_trades" validate:"gt=0" jsonschema:"default=1000"`
	QuoteTTL            time.Duration          `yaml:"quote_ttl" json:"quote_ttl" validate:"gt=0" jsonschema:"default=5m"`
	CleanupInterval     time.Duration          `yaml:"cleanup_interval" json:"cleanup_interval" validate:"gt=0" jsonschema:"default=1m"`
}

type ExecutorConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts" validate:"gt=0" jsonschema:"default=3"`
	DrainInterval  time.Duration `yaml:"drain_interval" json:"drain_interval" validate:"gt=0" jsonschema:"default=100ms"`
	RetryDelay     time.Duration `yaml:"retry_delay" json:"retry_delay" validate:"gte=0" jsonschema:"default=1s"`
	PublishTimeout time.Duration `yaml:"publish_timeout" json:"publish_timeout" validate:"gt=0" jsonschema:"default=5s"`
}

type RepositoryConfig struct {
	Driver string `yaml:"driver" json:"driver" validate:"oneof=memory duckdb" jsonschema:"enum=memory,enum=duckdb,default=memory"`
	// Path is the DuckDB database file. Ignored by the memory driver.
	Path string `yaml:"path" json:"path,omitempty" validate:"required_if=Driver duckdb"`
}

type NotifierConfig struct {
	// Log mirrors every event to the service log.
	Log  bool                `yaml:"log" json:"log"`
	NATS notifier.NATSConfig `yaml:"nats" json:"nats"`
}

// NATSEnabled reports whether a NATS server is configured.
func (c NotifierConfig) NATSEnabled() bool {
	return c.NATS.URL != ""
}

type OpsConfig struct {
	// Address of the ops HTTP server. Empty disables it.
	Address        string        `yaml:"address" json:"address,omitempty"`
	StatusInterval time.Duration `yaml:"status_interval" json:"status_interval" validate:"gt=0" jsonschema:"default=30s"`
}

type SessionConfig struct {
	// DataOutputPath is the root of the per-run folders holding stats.yaml and
	// trade_updates.parquet. Empty disables run output.
	DataOutputPath string `yaml:"data_output_path" json:"data_output_path,omitempty"`
}

// PrefetchConfig controls REST quote warm-up of the quote symbols before streaming starts.
type PrefetchConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled" jsonschema:"default=true"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0" jsonschema:"default=5s"`
}

// SymbolsConfig lists the market-data subscriptions made on startup.
type SymbolsConfig struct {
	Quotes []string `yaml:"quotes" json:"quotes,omitempty"`
	Trades []string `yaml:"trades" json:"trades,omitempty"`
	Bars   []string `yaml:"bars" json:"bars,omitempty"`
}

// Default returns a configuration for the paper environment with every
// tunable set.
func Default() Config {
	return Config{
		Environment: EnvironmentPaper,
		Alpaca: tradingprovider.AlpacaProviderConfig{
			Timeout:           10 * time.Second,
			RequestsPerMinute: 200,
		},
		Streams: StreamsConfig{
			MarketDataURL:       defaultMarketDataURL,
			HandshakeTimeout:    defaultHandshakeTimeout,
			WriteTimeout:        defaultWriteTimeout,
			HealthCheckInterval: 10 * time.Second,
			HealthCheckTimeout:  60 * time.Second,
			PingInterval:        20 * time.Second,
			Reconnect: stream.ReconnectConfig{
				BaseDelay:   time.Second,
				MaxDelay:    30 * time.Second,
				MaxAttempts: 10,
			},
			RecentTrades:    1000,
			QuoteTTL:        5 * time.Minute,
			CleanupInterval: time.Minute,
		},
		Batcher: stream.BatcherConfig{
			MaxBatchSize:     100,
			MaxBatchDelay:    100 * time.Millisecond,
			MaxQueueSize:     10000,
			MinPrice:         0.0001,
			MaxPrice:         1000000,
			MinVolume:        0,
			MaxVolume:        1e10,
			MaxSpreadPercent: 10,
		},
		Executor: ExecutorConfig{
			MaxAttempts:    3,
			DrainInterval:  100 * time.Millisecond,
			RetryDelay:     time.Second,
			PublishTimeout: defaultPublishTimeout,
		},
		Repository: RepositoryConfig{
			Driver: RepositoryMemory,
			Path:   defaultRepositoryDuckDBDir,
		},
		Notifier: NotifierConfig{
			Log: true,
			NATS: notifier.NATSConfig{
				SubjectPrefix:  defaultNATSSubjectPrefix,
				ClientName:     "argo-alpaca",
				ConnectTimeout: defaultNATSConnectTimeout,
				ReconnectWait:  defaultNATSReconnectWait,
				MaxReconnects:  defaultNATSMaxReconnects,
			},
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Ops: OpsConfig{
			Address:        defaultOpsAddress,
			StatusInterval: defaultStatusInterval,
		},
		Symbols: SymbolsConfig{
			Quotes: nil,
			Trades: nil,
			Bars:   nil,
		},
		Session: SessionConfig{
			DataOutputPath: "",
		},
		Prefetch: PrefetchConfig{
			Enabled: true,
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path skips the file. A .env file in the working
// directory is loaded first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to load .env file", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config file %s", path)
		}

		if err := version.CheckConfigCompatibility(version.GetVersion(), cfg.Version); err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "config file %s", path)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIKeyID); ok && v != "" {
		c.Alpaca.APIKey = v
	}

	if v, ok := lookup(EnvAPISecretKey); ok && v != "" {
		c.Alpaca.APISecret = v
	}

	if v, ok := lookup(EnvEnvironment); ok && v != "" {
		c.Environment = v
	}

	if v, ok := lookup(EnvNATSURL); ok && v != "" {
		c.Notifier.NATS.URL = v
	}
}

// Validate checks struct tags on the whole tree.
func (c Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	return nil
}

// IsPaper reports whether the paper environment is selected.
func (c Config) IsPaper() bool {
	return c.Environment != EnvironmentLive
}

// ProviderType maps the environment onto the provider registry.
func (c Config) ProviderType() tradingprovider.ProviderType {
	if c.IsPaper() {
		return tradingprovider.ProviderAlpacaPaper
	}

	return tradingprovider.ProviderAlpacaLive
}

// TradingStreamURL is the configured trading stream or the environment default.
func (c Config) TradingStreamURL() string {
	if c.Streams.TradingURL != "" {
		return c.Streams.TradingURL
	}

	if c.IsPaper() {
		return defaultPaperTradingStream
	}

	return defaultLiveTradingStream
}

func (c Config) managerConfig(url string) stream.ManagerConfig {
	return stream.ManagerConfig{
		URL:                 url,
		APIKey:              c.Alpaca.APIKey,
		APISecret:           c.Alpaca.APISecret,
		HandshakeTimeout:    c.Streams.HandshakeTimeout,
		WriteTimeout:        c.Streams.WriteTimeout,
		HealthCheckInterval: c.Streams.HealthCheckInterval,
		HealthCheckTimeout:  c.Streams.HealthCheckTimeout,
		PingInterval:        c.Streams.PingInterval,
		Reconnect:           c.Streams.Reconnect,
		RecentTrades:        c.Streams.RecentTrades,
		QuoteTTL:            c.Streams.QuoteTTL,
		CleanupInterval:     c.Streams.CleanupInterval,
	}
}

// MarketDataManagerConfig returns the settings of the market-data stream.
func (c Config) MarketDataManagerConfig() stream.ManagerConfig {
	return c.managerConfig(c.Streams.MarketDataURL)
}

// TradingManagerConfig returns the settings of a trading stream.
func (c Config) TradingManagerConfig() stream.ManagerConfig {
	return c.managerConfig(c.TradingStreamURL())
}

func (c Config) ExecutorConfig() executor.Config {
	return executor.Config{
		MaxAttempts:    c.Executor.MaxAttempts,
		DrainInterval:  c.Executor.DrainInterval,
		RetryDelay:     c.Executor.RetryDelay,
		PublishTimeout: c.Executor.PublishTimeout,
	}
}

// Subscription returns the startup market-data subscription.
func (c Config) Subscription() stream.Subscription {
	return stream.Subscription{
		Trades: c.Symbols.Trades,
		Quotes: c.Symbols.Quotes,
		Bars:   c.Symbols.Bars,
	}
}

// Schema returns the JSON schema of the YAML configuration file.
func Schema() (string, error) {
	return schema.ToYAMLSchema(Config{})
}
