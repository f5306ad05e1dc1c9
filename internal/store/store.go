// Package store persists the consolidated table and ingest run history.
package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vintage-cli/internal/config"
	"github.com/sells-group/vintage-cli/internal/model"
	"github.com/sells-group/vintage-cli/internal/resilience"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines persistence for vintage observations and ingest runs.
// Saving an existing (observation_date, vintage_date) key overwrites it, the
// same policy the in-memory merge applies.
type Store interface {
	// Observations
	SaveObservations(ctx context.Context, obs []model.VintageObservation) (int64, error)
	LoadObservations(ctx context.Context) ([]model.VintageObservation, error)
	ObservationHistory(ctx context.Context, month time.Time) ([]model.VintageObservation, error)

	// Ingest runs
	StartRun(ctx context.Context, source string) (*model.IngestRun, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.IngestRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		if dir := filepath.Dir(cfg.DatabaseURL); cfg.DatabaseURL != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "store: create dir %s", dir)
			}
		}
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		// The database may still be starting when the CLI runs in compose.
		st, err = resilience.DoVal(ctx, resilience.RetryConfig{
			MaxAttempts: 3,
			OnRetry:     resilience.RetryLogger("postgres", "connect"),
		}, func(ctx context.Context) (Store, error) {
			return NewPostgres(ctx, cfg.DatabaseURL)
		})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
