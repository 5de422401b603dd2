package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalidConfig marks configuration that must stop the process before any
// request is served.
var ErrInvalidConfig = errors.New("INVALID_CONFIG")

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Valuation  ValuationConfig  `yaml:"valuation" mapstructure:"valuation"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CategoryWeights are the BRI category weights. They must sum to exactly 1.
type CategoryWeights struct {
	Financial       float64 `yaml:"financial" mapstructure:"financial"`
	Transferability float64 `yaml:"transferability" mapstructure:"transferability"`
	Operational     float64 `yaml:"operational" mapstructure:"operational"`
	Market          float64 `yaml:"market" mapstructure:"market"`
	LegalTax        float64 `yaml:"legal_tax" mapstructure:"legal_tax"`
	Personal        float64 `yaml:"personal" mapstructure:"personal"`
}

// CoreWeights are the Core Score structural factor weights. They must sum
// to exactly 1.
type CoreWeights struct {
	RevenueSize      float64 `yaml:"revenue_size" mapstructure:"revenue_size"`
	RevenueModel     float64 `yaml:"revenue_model" mapstructure:"revenue_model"`
	GrossMargin      float64 `yaml:"gross_margin" mapstructure:"gross_margin"`
	LaborIntensity   float64 `yaml:"labor_intensity" mapstructure:"labor_intensity"`
	AssetIntensity   float64 `yaml:"asset_intensity" mapstructure:"asset_intensity"`
	OwnerInvolvement float64 `yaml:"owner_involvement" mapstructure:"owner_involvement"`
}

// ValuationConfig configures the scoring and multiple derivation.
type ValuationConfig struct {
	Alpha                float64         `yaml:"alpha" mapstructure:"alpha"`
	CategoryWeights      CategoryWeights `yaml:"category_weights" mapstructure:"category_weights"`
	CoreWeights          CoreWeights     `yaml:"core_weights" mapstructure:"core_weights"`
	AllowEstimatedEBITDA bool            `yaml:"allow_estimated_ebitda" mapstructure:"allow_estimated_ebitda"`
	FCFToEBITDARatio     float64         `yaml:"fcf_to_ebitda_ratio" mapstructure:"fcf_to_ebitda_ratio"`
	TaskTiersFile        string          `yaml:"task_tiers_file" mapstructure:"task_tiers_file"`
	DefaultMultiplesFile string          `yaml:"default_multiples_file" mapstructure:"default_multiples_file"`
}

// BatchConfig configures batch recalculation.
type BatchConfig struct {
	MaxConcurrentCompanies int     `yaml:"max_concurrent_companies" mapstructure:"max_concurrent_companies"`
	RatePerSecond          float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// RetryConfig configures retries of transient store failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// MonitoringConfig configures drift signal and batch failure alerting. The
// webhook is skipped for ResetTimeoutSecs after FailureThreshold consecutive
// delivery failures.
type MonitoringConfig struct {
	WebhookURL                string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs               int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailureThreshold          int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs          int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	BatchFailureRateThreshold float64 `yaml:"batch_failure_rate_threshold" mapstructure:"batch_failure_rate_threshold"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VALUATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_companies", 5)
	v.SetDefault("batch.rate_per_second", 0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("monitoring.timeout_secs", 10)
	v.SetDefault("monitoring.failure_threshold", 5)
	v.SetDefault("monitoring.reset_timeout_secs", 60)
	v.SetDefault("monitoring.batch_failure_rate_threshold", 0.25)
	v.SetDefault("valuation.alpha", 1.4)
	v.SetDefault("valuation.allow_estimated_ebitda", false)
	v.SetDefault("valuation.fcf_to_ebitda_ratio", 0.70)
	v.SetDefault("valuation.category_weights.financial", 0.25)
	v.SetDefault("valuation.category_weights.transferability", 0.20)
	v.SetDefault("valuation.category_weights.operational", 0.20)
	v.SetDefault("valuation.category_weights.market", 0.15)
	v.SetDefault("valuation.category_weights.legal_tax", 0.10)
	v.SetDefault("valuation.category_weights.personal", 0.10)
	v.SetDefault("valuation.core_weights.revenue_size", 0.20)
	v.SetDefault("valuation.core_weights.revenue_model", 0.20)
	v.SetDefault("valuation.core_weights.gross_margin", 0.15)
	v.SetDefault("valuation.core_weights.labor_intensity", 0.15)
	v.SetDefault("valuation.core_weights.asset_intensity", 0.10)
	v.SetDefault("valuation.core_weights.owner_involvement", 0.20)

	// Read config file (optional)
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

// Validate checks the configuration invariants the engine relies on.
// Failures wrap ErrInvalidConfig.
func (cfg *Config) Validate() error {
	var errs []string

	cw := cfg.Valuation.CategoryWeights
	if msg := checkWeights("category_weights", map[string]float64{
		"financial":       cw.Financial,
		"transferability": cw.Transferability,
		"operational":     cw.Operational,
		"market":          cw.Market,
		"legal_tax":       cw.LegalTax,
		"personal":        cw.Personal,
	}); msg != "" {
		errs = append(errs, msg)
	}

	core := cfg.Valuation.CoreWeights
	if msg := checkWeights("core_weights", map[string]float64{
		"revenue_size":      core.RevenueSize,
		"revenue_model":     core.RevenueModel,
		"gross_margin":      core.GrossMargin,
		"labor_intensity":   core.LaborIntensity,
		"asset_intensity":   core.AssetIntensity,
		"owner_involvement": core.OwnerInvolvement,
	}); msg != "" {
		errs = append(errs, msg)
	}

	if cfg.Valuation.Alpha < 1.3 || cfg.Valuation.Alpha > 1.6 {
		errs = append(errs, fmt.Sprintf("valuation.alpha must be within [1.3, 1.6], got %g", cfg.Valuation.Alpha))
	}
	if cfg.Valuation.FCFToEBITDARatio <= 0 || cfg.Valuation.FCFToEBITDARatio > 1 {
		errs = append(errs, "valuation.fcf_to_ebitda_ratio must be within (0, 1]")
	}
	if cfg.Batch.MaxConcurrentCompanies <= 0 {
		errs = append(errs, "batch.max_concurrent_companies must be > 0")
	}
	if cfg.Batch.RatePerSecond < 0 {
		errs = append(errs, "batch.rate_per_second must be >= 0")
	}
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", cfg.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Wrapf(ErrInvalidConfig, "config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// checkWeights returns a message when any weight is negative or the set
// does not sum to exactly 1.
func checkWeights(section string, weights map[string]float64) string {
	sum := decimal.Zero
	var bad []string
	for name, w := range weights {
		if w < 0 {
			bad = append(bad, name)
		}
		sum = sum.Add(decimal.NewFromFloat(w))
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return fmt.Sprintf("valuation.%s must be >= 0 (%s)", section, strings.Join(bad, ", "))
	}
	if !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Sprintf("valuation.%s must sum to 1.0, got %s", section, sum.String())
	}
	return ""
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
