package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/vintages.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "data/raw", cfg.Ingest.RawDir)
	assert.Equal(t, []string{"ap2y_*.csv", "ap2y_*.xlsx"}, cfg.Ingest.Patterns)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
	assert.True(t, cfg.Ingest.UseModTimeFallback)
	assert.Equal(t, 2, cfg.Revision.MinBucketSize)
	assert.Equal(t, "observation", cfg.Revision.AgeBasis)
	assert.Equal(t, 12, cfg.Forecast.Horizon)
	assert.Equal(t, 24, cfg.Forecast.MinHistory)
	assert.Equal(t, 12, cfg.Forecast.SeasonLength)
	assert.InDelta(t, 1.96, cfg.Forecast.ResidualMultiplier, 0.001)
	assert.Equal(t, 2, cfg.Forecast.ComparableAgeWindow)
	assert.Equal(t, "reports", cfg.Report.OutDir)
	assert.Equal(t, "data/processed/ap2y_consolidated.csv", cfg.Report.ConsolidatedFile)
	assert.Equal(t, "https://www.ons.gov.uk", cfg.ONS.BaseURL)
	assert.Equal(t, 5, cfg.ONS.MaxRetries)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/vintages
log:
  level: debug
  format: console
forecast:
  horizon: 6
revision:
  min_bucket_size: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 6, cfg.Forecast.Horizon)
	assert.Equal(t, 5, cfg.Revision.MinBucketSize)
	// Defaults still apply for unset values
	assert.Equal(t, 24, cfg.Forecast.MinHistory)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
forecast:
  horizon: 6
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("VINTAGE_FORECAST_HORIZON", "18")
	t.Setenv("VINTAGE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 18, cfg.Forecast.Horizon)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "data/vintages.db"
	cfg.Ingest.RawDir = "data/raw"
	cfg.Ingest.Concurrency = 4
	cfg.Revision.MinBucketSize = 2
	cfg.Revision.AgeBasis = "observation"
	cfg.Forecast.Horizon = 12
	cfg.Forecast.MinHistory = 24
	cfg.Forecast.SeasonLength = 12
	cfg.Forecast.ResidualMultiplier = 1.96
	cfg.Forecast.ComparableAgeWindow = 2
	cfg.ONS.PreviousURL = "https://example.test/previous"
	cfg.ONS.RequestsPerSecond = 1
	cfg.ONS.MaxRetries = 3
	cfg.ONS.TimeoutSecs = 30
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"ingest", "analyze", "run", "fetch", "serve"} {
		t.Run(mode, func(t *testing.T) {
			assert.NoError(t, cfg.Validate(mode))
		})
	}
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateIngest_MissingRawDir(t *testing.T) {
	cfg := validDefaults()
	cfg.Ingest.RawDir = ""

	err := cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.raw_dir is required")
}

func TestValidateIngest_BadDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "StoreConfig.Driver")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateAnalyze_Bounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Forecast.Horizon = 0
	cfg.Revision.AgeBasis = "publication"

	err := cfg.Validate("analyze")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ForecastConfig.Horizon")
	assert.Contains(t, err.Error(), "RevisionConfig.AgeBasis")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Ingest.Concurrency = 0
	assert.Error(t, cfg.Validate("ingest"))

	cfg.Ingest.Concurrency = 65
	assert.Error(t, cfg.Validate("ingest"))

	cfg.Ingest.Concurrency = 64
	assert.NoError(t, cfg.Validate("ingest"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}
