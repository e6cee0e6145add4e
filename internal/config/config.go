package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Warehouse   WarehouseConfig   `yaml:"warehouse" mapstructure:"warehouse"`
	Paths       PathsConfig       `yaml:"paths" mapstructure:"paths"`
	EDGAR       EDGARConfig       `yaml:"edgar" mapstructure:"edgar"`
	Massive     MassiveConfig     `yaml:"massive" mapstructure:"massive"`
	FRED        FREDConfig        `yaml:"fred" mapstructure:"fred"`
	RiskFactors RiskFactorsConfig `yaml:"risk_factors" mapstructure:"risk_factors"`
	Gather      GatherConfig      `yaml:"gather" mapstructure:"gather"`
	Freshness   FreshnessConfig   `yaml:"freshness" mapstructure:"freshness"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// WarehouseConfig configures the embedded analytical database.
type WarehouseConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	CacheSizeMB int    `yaml:"cache_size_mb" mapstructure:"cache_size_mb"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	BusyTimeout int    `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// PathsConfig holds the on-disk layout for downloads and batch files.
type PathsConfig struct {
	DownloadDir string `yaml:"download_dir" mapstructure:"download_dir"`
	ParquetDir  string `yaml:"parquet_dir" mapstructure:"parquet_dir"`
}

// EDGARConfig configures the SEC bulk-data stage. The SEC requires a
// descriptive User-Agent with a contact address on every request.
type EDGARConfig struct {
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	SubmissionsURL  string `yaml:"submissions_url" mapstructure:"submissions_url"`
	CompanyFactsURL string `yaml:"companyfacts_url" mapstructure:"companyfacts_url"`
	TickerMapURL    string `yaml:"ticker_map_url" mapstructure:"ticker_map_url"`
}

// MassiveConfig configures the Massive.com (formerly Polygon.io) client.
type MassiveConfig struct {
	APIKey         string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	CallsPerMinute int    `yaml:"calls_per_minute" mapstructure:"calls_per_minute"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FREDConfig configures the macro-series gatherer.
type FREDConfig struct {
	APIKey  string   `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string   `yaml:"base_url" mapstructure:"base_url"`
	Series  []string `yaml:"series" mapstructure:"series"`
}

// RiskFactorsConfig configures the Fama-French factor download.
type RiskFactorsConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	FactorModel string `yaml:"factor_model" mapstructure:"factor_model"`
}

// GatherConfig configures the batch orchestrator.
type GatherConfig struct {
	Workers         int `yaml:"workers" mapstructure:"workers"`
	BatchSize       int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxRuntimeHours int `yaml:"max_runtime_hours" mapstructure:"max_runtime_hours"`
	LookbackYears   int `yaml:"lookback_years" mapstructure:"lookback_years"`
	ClampDays       int `yaml:"clamp_days" mapstructure:"clamp_days"`
}

// FreshnessConfig holds the operational tuning thresholds. These are knobs,
// not derived invariants, so they stay independently adjustable.
type FreshnessConfig struct {
	StaleDays       int `yaml:"stale_days" mapstructure:"stale_days"`
	MinRecords      int `yaml:"min_records" mapstructure:"min_records"`
	ExpiryDays      int `yaml:"expiry_days" mapstructure:"expiry_days"`
	InfoRefreshDays int `yaml:"info_refresh_days" mapstructure:"info_refresh_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MaxRuntime returns the wall-clock budget for a gather run.
func (g GatherConfig) MaxRuntime() time.Duration {
	return time.Duration(g.MaxRuntimeHours) * time.Hour
}

// Timeout returns the per-call HTTP timeout.
func (m MassiveConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSecs) * time.Second
}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	// Optional .env alongside the binary, matching the deployment layout.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("EDGARSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("warehouse.path", "data/edgar.db")
	v.SetDefault("warehouse.cache_size_mb", 512)
	v.SetDefault("warehouse.busy_timeout_ms", 5000)
	v.SetDefault("paths.download_dir", "data/downloads")
	v.SetDefault("paths.parquet_dir", "data/parquet")
	v.SetDefault("edgar.submissions_url", "https://www.sec.gov/Archives/edgar/daily-index/bulkdata/submissions.zip")
	v.SetDefault("edgar.companyfacts_url", "https://www.sec.gov/Archives/edgar/daily-index/xbrl/companyfacts.zip")
	v.SetDefault("edgar.ticker_map_url", "https://www.sec.gov/files/company_tickers.json")
	v.SetDefault("massive.base_url", "https://api.massive.com")
	v.SetDefault("massive.calls_per_minute", 5)
	v.SetDefault("massive.max_retries", 3)
	v.SetDefault("massive.timeout_secs", 30)
	v.SetDefault("fred.base_url", "https://api.stlouisfed.org")
	v.SetDefault("fred.series", []string{
		"GDP", "UNRATE", "CPIAUCSL", "FEDFUNDS", "GS10", "GS2",
		"T10Y2Y", "SP500", "VIXCLS", "M2SL", "DTWEXBGS", "HOUST",
	})
	v.SetDefault("risk_factors.url", "https://mba.tuck.dartmouth.edu/pages/faculty/ken.french/ftp/F-F_Research_Data_5_Factors_2x3_daily_CSV.zip")
	v.SetDefault("risk_factors.factor_model", "ff5_daily")
	v.SetDefault("gather.workers", 1)
	v.SetDefault("gather.batch_size", 500)
	v.SetDefault("gather.max_runtime_hours", 15)
	v.SetDefault("gather.lookback_years", 5)
	v.SetDefault("gather.clamp_days", 1825)
	v.SetDefault("freshness.stale_days", 7)
	v.SetDefault("freshness.min_records", 365)
	v.SetDefault("freshness.expiry_days", 365)
	v.SetDefault("freshness.info_refresh_days", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
