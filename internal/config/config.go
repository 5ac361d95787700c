package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"proppulse-risk/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Grading    GradingConfig    `mapstructure:"grading"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs risk-cycle cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// SimulationConfig tunes the Monte Carlo engine.
type SimulationConfig struct {
	TrialCount    int           `mapstructure:"trial_count"`
	Seed          uint64        `mapstructure:"seed"`
	Workers       int           `mapstructure:"workers"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MetricWindow  time.Duration `mapstructure:"metric_window"`
}

// GradingConfig carries the grade thresholds.
type GradingConfig struct {
	GreenProbNegative   float64 `mapstructure:"green_prob_negative"`
	GreenDeveloperScore int     `mapstructure:"green_developer_score"`
	AmberProbNegative   float64 `mapstructure:"amber_prob_negative"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	DashboardURL string            `mapstructure:"dashboard_url"`
	MaxRetries   int               `mapstructure:"max_retries"`
	RetryBackoff time.Duration     `mapstructure:"retry_backoff"`
	CRM          CRMConfig         `mapstructure:"crm"`
	Investor     InvestorConfig    `mapstructure:"investor"`
	Marketplace  MarketplaceConfig `mapstructure:"marketplace"`
}

// CRMConfig captures Zoho-style CRM task creation.
type CRMConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	AccessToken    string        `mapstructure:"access_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// InvestorConfig routes grade changes to the investor notification service.
type InvestorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	APIToken       string        `mapstructure:"api_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MarketplaceConfig drives listing reprices on downgrades.
type MarketplaceConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	APIToken          string        `mapstructure:"api_token"`
	GreenToAmberDelta float64       `mapstructure:"green_to_amber_delta"`
	AmberToRedDelta   float64       `mapstructure:"amber_to_red_delta"`
	GreenToRedDelta   float64       `mapstructure:"green_to_red_delta"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// SourcesConfig enumerates market data providers.
type SourcesConfig struct {
	Window       time.Duration         `mapstructure:"window"`
	Timeout      time.Duration         `mapstructure:"timeout"`
	MaxRetries   int                   `mapstructure:"max_retries"`
	RetryBackoff time.Duration         `mapstructure:"retry_backoff"`
	STR          STRSourceConfig       `mapstructure:"str"`
	RentalIndex  RentalIndexConfig     `mapstructure:"rental_index"`
	SwapCurve    SwapCurveSourceConfig `mapstructure:"swap_curve"`
	Developers   DeveloperSourceConfig `mapstructure:"developers"`
}

// RentalIndexConfig covers the residential rent index API.
type RentalIndexConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	BaseURL   string   `mapstructure:"base_url"`
	APIToken  string   `mapstructure:"api_token"`
	Areas     []string `mapstructure:"areas"`
	UserAgent string   `mapstructure:"user_agent"`
}

// STRSourceConfig covers the short-term-rental metrics API.
type STRSourceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Region    string `mapstructure:"region"`
	Currency  string `mapstructure:"currency"`
	UserAgent string `mapstructure:"user_agent"`
}

// SwapCurveSourceConfig covers the central-bank swap rate feed.
type SwapCurveSourceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	FeedURL   string `mapstructure:"feed_url"`
	Region    string `mapstructure:"region"`
	UserAgent string `mapstructure:"user_agent"`
}

// DeveloperSourceConfig covers the developer default register.
type DeveloperSourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	HistogramBins int `mapstructure:"histogram_bins"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RISKWATCHER")
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

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "riskwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("simulation.trial_count", 5000)
	v.SetDefault("simulation.workers", 0)
	v.SetDefault("simulation.max_concurrent", 4)
	v.SetDefault("simulation.metric_window", "2160h")

	v.SetDefault("grading.green_prob_negative", 0.10)
	v.SetDefault("grading.green_developer_score", 2)
	v.SetDefault("grading.amber_prob_negative", 0.25)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.max_retries", 2)
	v.SetDefault("alerting.retry_backoff", "1s")
	v.SetDefault("alerting.crm.request_timeout", "10s")
	v.SetDefault("alerting.investor.request_timeout", "10s")
	v.SetDefault("alerting.marketplace.request_timeout", "10s")
	v.SetDefault("alerting.marketplace.green_to_amber_delta", 0.02)
	v.SetDefault("alerting.marketplace.amber_to_red_delta", 0.02)
	v.SetDefault("alerting.marketplace.green_to_red_delta", 0.04)

	v.SetDefault("sources.window", "720h")
	v.SetDefault("sources.timeout", "30s")
	v.SetDefault("sources.max_retries", 2)
	v.SetDefault("sources.retry_backoff", "2s")
	v.SetDefault("sources.str.region", "Dubai")
	v.SetDefault("sources.str.currency", "AED")
	v.SetDefault("sources.str.user_agent", "riskwatcher/1.0")
	v.SetDefault("sources.rental_index.areas", []string{"Dubai Marina", "Downtown"})
	v.SetDefault("sources.rental_index.user_agent", "riskwatcher/1.0")
	v.SetDefault("sources.swap_curve.region", "UAE")
	v.SetDefault("sources.swap_curve.user_agent", "riskwatcher/1.0")

	v.SetDefault("export.histogram_bins", 40)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Simulation.TrialCount <= 0 {
		return fmt.Errorf("simulation.trial_count must be greater than zero")
	}
	if c.Grading.GreenProbNegative < 0 || c.Grading.GreenProbNegative > 1 {
		return fmt.Errorf("grading.green_prob_negative must be within [0, 1]")
	}
	if c.Grading.AmberProbNegative < c.Grading.GreenProbNegative {
		return fmt.Errorf("grading.amber_prob_negative must not be below the green threshold")
	}
	if c.Export.HistogramBins <= 0 {
		return fmt.Errorf("export.histogram_bins must be greater than zero")
	}
	if c.Alerting.CRM.Enabled {
		if c.Alerting.CRM.BaseURL == "" {
			return fmt.Errorf("alerting.crm.base_url must be configured")
		}
		if c.Alerting.CRM.AccessToken == "" {
			return fmt.Errorf("alerting.crm.access_token must be configured")
		}
	}
	if c.Alerting.Investor.Enabled && c.Alerting.Investor.BaseURL == "" {
		return fmt.Errorf("alerting.investor.base_url must be configured")
	}
	if c.Alerting.Marketplace.Enabled && c.Alerting.Marketplace.BaseURL == "" {
		return fmt.Errorf("alerting.marketplace.base_url must be configured")
	}
	if c.Sources.Developers.Enabled && c.Sources.Developers.Path == "" {
		return fmt.Errorf("sources.developers.path must be configured")
	}
	return nil
}
