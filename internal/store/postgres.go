package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/vintage-cli/internal/db"
	"github.com/sells-group/vintage-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var observationUpsert = db.UpsertConfig{
	Table:        "vintage_observations",
	Columns:      []string{"observation_date", "vintage_date", "value", "source_file"},
	ConflictKeys: []string{"observation_date", "vintage_date"},
}

// NewPostgres creates a PostgresStore with a small connection pool. The CLI is a
// batch tool, so a handful of connections is enough.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vintage_observations (
	observation_date DATE NOT NULL,
	vintage_date     DATE NOT NULL,
	value            DOUBLE PRECISION NOT NULL,
	source_file      TEXT NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (observation_date, vintage_date)
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	result       JSONB,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_vintage_observations_vintage ON vintage_observations(vintage_date);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_status ON ingest_runs(status);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveObservations upserts through a temp table. Keys are unique within obs
// because callers pass the rows of a consolidated table.
func (s *PostgresStore) SaveObservations(ctx context.Context, obs []model.VintageObservation) (int64, error) {
	rows := make([][]any, len(obs))
	for i, o := range obs {
		rows[i] = []any{model.MonthStart(o.ObservationDate), model.DateOnly(o.VintageDate), o.Value, o.SourceFile}
	}
	n, err := db.BulkUpsert(ctx, s.pool, observationUpsert, rows)
	return n, eris.Wrap(err, "postgres: save observations")
}

func (s *PostgresStore) LoadObservations(ctx context.Context) ([]model.VintageObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT observation_date, vintage_date, value, source_file FROM vintage_observations
		 ORDER BY observation_date, vintage_date`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load observations")
	}
	return collectObservations(rows)
}

func (s *PostgresStore) ObservationHistory(ctx context.Context, month time.Time) ([]model.VintageObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT observation_date, vintage_date, value, source_file FROM vintage_observations
		 WHERE observation_date = $1 ORDER BY vintage_date`,
		model.MonthStart(month),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: observation history")
	}
	return collectObservations(rows)
}

func (s *PostgresStore) StartRun(ctx context.Context, source string) (*model.IngestRun, error) {
	run := &model.IngestRun{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, source, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Source, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, result = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusComplete), resultJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.IngestRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, status, result, error, started_at, completed_at FROM ingest_runs WHERE id = $1`,
		runID,
	)
	run, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	return run, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestRun, error) {
	query := `SELECT id, source, status, result, error, started_at, completed_at FROM ingest_runs`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))
	if filter.Status != "" {
		query += ` ORDER BY started_at DESC LIMIT $2 OFFSET $3`
	} else {
		query += ` ORDER BY started_at DESC LIMIT $1 OFFSET $2`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func collectObservations(rows pgx.Rows) ([]model.VintageObservation, error) {
	defer rows.Close()

	var out []model.VintageObservation
	for rows.Next() {
		var o model.VintageObservation
		if err := rows.Scan(&o.ObservationDate, &o.VintageDate, &o.Value, &o.SourceFile); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		o.ObservationDate = model.MonthStart(o.ObservationDate)
		o.VintageDate = model.DateOnly(o.VintageDate)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate observations")
}

func scanPostgresRun(row scannable) (*model.IngestRun, error) {
	var r model.IngestRun
	var status string
	var result []byte

	if err := row.Scan(&r.ID, &r.Source, &status, &result, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.Status = model.RunStatus(status)
	if len(result) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}
