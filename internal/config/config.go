package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Revision RevisionConfig `yaml:"revision" mapstructure:"revision"`
	Forecast ForecastConfig `yaml:"forecast" mapstructure:"forecast"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	ONS      ONSConfig      `yaml:"ons" mapstructure:"ons"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// IngestConfig configures discovery and parsing of raw vintage files.
type IngestConfig struct {
	RawDir             string   `yaml:"raw_dir" mapstructure:"raw_dir"`
	Patterns           []string `yaml:"patterns" mapstructure:"patterns"`
	Concurrency        int      `yaml:"concurrency" mapstructure:"concurrency" validate:"min=1,max=64"`
	UseModTimeFallback bool     `yaml:"use_mod_time_fallback" mapstructure:"use_mod_time_fallback"`
}

// RevisionConfig configures revision statistics.
type RevisionConfig struct {
	MinBucketSize int    `yaml:"min_bucket_size" mapstructure:"min_bucket_size" validate:"min=1"`
	AgeBasis      string `yaml:"age_basis" mapstructure:"age_basis" validate:"oneof=observation first_release"`
}

// ForecastConfig configures the baseline forecast.
type ForecastConfig struct {
	Horizon             int     `yaml:"horizon" mapstructure:"horizon" validate:"min=1,max=120"`
	MinHistory          int     `yaml:"min_history" mapstructure:"min_history" validate:"min=3"`
	SeasonLength        int     `yaml:"season_length" mapstructure:"season_length" validate:"min=1"`
	ResidualMultiplier  float64 `yaml:"residual_multiplier" mapstructure:"residual_multiplier" validate:"gt=0"`
	ComparableAgeWindow int     `yaml:"comparable_age_window" mapstructure:"comparable_age_window" validate:"min=0"`
}

// ReportConfig configures where artifacts are written.
type ReportConfig struct {
	OutDir           string `yaml:"out_dir" mapstructure:"out_dir"`
	ConsolidatedFile string `yaml:"consolidated_file" mapstructure:"consolidated_file"`
	XLSX             bool   `yaml:"xlsx" mapstructure:"xlsx"`
}

// ONSConfig configures vintage downloads from the ONS website.
type ONSConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	PreviousURL       string  `yaml:"previous_url" mapstructure:"previous_url"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries" validate:"min=1"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
}

// ServerConfig configures the report server.
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
	v.SetEnvPrefix("VINTAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/vintages.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ingest.raw_dir", "data/raw")
	v.SetDefault("ingest.patterns", []string{"ap2y_*.csv", "ap2y_*.xlsx"})
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.use_mod_time_fallback", true)
	v.SetDefault("revision.min_bucket_size", 2)
	v.SetDefault("revision.age_basis", "observation")
	v.SetDefault("forecast.horizon", 12)
	v.SetDefault("forecast.min_history", 24)
	v.SetDefault("forecast.season_length", 12)
	v.SetDefault("forecast.residual_multiplier", 1.96)
	v.SetDefault("forecast.comparable_age_window", 2)
	v.SetDefault("report.out_dir", "reports")
	v.SetDefault("report.consolidated_file", "data/processed/ap2y_consolidated.csv")
	v.SetDefault("report.xlsx", false)
	v.SetDefault("ons.base_url", "https://www.ons.gov.uk")
	v.SetDefault("ons.previous_url", "https://www.ons.gov.uk/employmentandlabourmarket/peopleinwork/employmentandemployeetypes/timeseries/ap2y/lms/previous")
	v.SetDefault("ons.user_agent", "vintage-cli/1.0 (+https://www.ons.gov.uk/)")
	v.SetDefault("ons.requests_per_second", 0.8)
	v.SetDefault("ons.max_retries", 5)
	v.SetDefault("ons.timeout_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

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

// Validate checks the fields a command mode depends on. Struct-tag rules are
// applied to the sections the mode reads; mode-specific rules follow.
func (c *Config) Validate(mode string) error {
	var sections []any
	var errs []string

	switch mode {
	case "ingest":
		sections = []any{c.Store, c.Ingest}
		if c.Ingest.RawDir == "" {
			errs = append(errs, "ingest.raw_dir is required")
		}
	case "analyze":
		sections = []any{c.Revision, c.Forecast}
		if c.Forecast.MinHistory < 2*c.Forecast.SeasonLength && c.Forecast.SeasonLength > 1 {
			zap.L().Warn("config: forecast.min_history is shorter than two seasons; seasonal model may fall back to trend-only",
				zap.Int("min_history", c.Forecast.MinHistory),
				zap.Int("season_length", c.Forecast.SeasonLength),
			)
		}
	case "run":
		sections = []any{c.Store, c.Ingest, c.Revision, c.Forecast}
		if c.Ingest.RawDir == "" {
			errs = append(errs, "ingest.raw_dir is required")
		}
	case "fetch":
		sections = []any{c.ONS}
		if c.ONS.PreviousURL == "" {
			errs = append(errs, "ons.previous_url is required")
		}
	case "serve":
		sections = []any{c.Store, c.Revision, c.Forecast}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for the postgres driver")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	for _, s := range sections {
		if err := validate.Struct(s); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					errs = append(errs, fmt.Sprintf("%s failed %q (value %v)", fe.StructNamespace(), fe.Tag(), fe.Value()))
				}
				continue
			}
			return eris.Wrap(err, "config: validate")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
