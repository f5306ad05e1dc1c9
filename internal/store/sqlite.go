package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/vintage-cli/internal/model"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vintage_observations (
	observation_date TEXT NOT NULL,
	vintage_date     TEXT NOT NULL,
	value            REAL NOT NULL,
	source_file      TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	PRIMARY KEY (observation_date, vintage_date)
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	result       TEXT,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TEXT NOT NULL,
	completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_vintage_observations_vintage ON vintage_observations(vintage_date);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_status ON ingest_runs(status);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveObservations(ctx context.Context, obs []model.VintageObservation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vintage_observations (observation_date, vintage_date, value, source_file, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (observation_date, vintage_date) DO UPDATE SET
			value = excluded.value,
			source_file = excluded.source_file,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC().Format(sqliteTimeLayout)
	var n int64
	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx,
			formatDay(model.MonthStart(o.ObservationDate)),
			formatDay(o.VintageDate),
			o.Value,
			o.SourceFile,
			now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert observation %s", model.FormatMonth(o.ObservationDate))
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit observations")
	}
	return n, nil
}

func (s *SQLiteStore) LoadObservations(ctx context.Context) ([]model.VintageObservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT observation_date, vintage_date, value, source_file FROM vintage_observations
		 ORDER BY observation_date, vintage_date`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load observations")
	}
	return scanObservations(rows)
}

func (s *SQLiteStore) ObservationHistory(ctx context.Context, month time.Time) ([]model.VintageObservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT observation_date, vintage_date, value, source_file FROM vintage_observations
		 WHERE observation_date = ? ORDER BY vintage_date`,
		formatDay(model.MonthStart(month)),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: observation history")
	}
	return scanObservations(rows)
}

func (s *SQLiteStore) StartRun(ctx context.Context, source string) (*model.IngestRun, error) {
	run := &model.IngestRun{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Source, string(run.Status), run.StartedAt.Format(sqliteTimeLayout),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, result = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), string(resultJSON), time.Now().UTC().Format(sqliteTimeLayout), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), msg, time.Now().UTC().Format(sqliteTimeLayout), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.IngestRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, result, error, started_at, completed_at FROM ingest_runs WHERE id = ?`,
		runID,
	)
	run, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: get run %s", runID)
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestRun, error) {
	query := `SELECT id, source, status, result, error, started_at, completed_at FROM ingest_runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.IngestRun
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func formatDay(t time.Time) string {
	return t.UTC().Format(model.DateLayout)
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanObservations(rows *sql.Rows) ([]model.VintageObservation, error) {
	defer rows.Close() //nolint:errcheck

	var out []model.VintageObservation
	for rows.Next() {
		var o model.VintageObservation
		var obsDate, vintDate string
		if err := rows.Scan(&obsDate, &vintDate, &o.Value, &o.SourceFile); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		var err error
		if o.ObservationDate, err = time.Parse(model.DateLayout, obsDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse observation_date")
		}
		if o.VintageDate, err = time.Parse(model.DateLayout, vintDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse vintage_date")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate observations")
}

func scanSQLiteRun(row scannable) (*model.IngestRun, error) {
	var r model.IngestRun
	var status, started string
	var result, completed sql.NullString

	if err := row.Scan(&r.ID, &r.Source, &status, &result, &r.Error, &started, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)

	t, err := time.Parse(sqliteTimeLayout, started)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse started_at")
	}
	r.StartedAt = t

	if completed.Valid {
		t, err := time.Parse(sqliteTimeLayout, completed.String)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse completed_at")
		}
		r.CompletedAt = &t
	}
	if result.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(result.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
