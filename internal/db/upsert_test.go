package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var observationUpsert = UpsertConfig{
	Table:        "vintage_observations",
	Columns:      []string{"observation_date", "vintage_date", "value", "source_file"},
	ConflictKeys: []string{"observation_date", "vintage_date"},
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestBulkUpsert(t *testing.T) {
	mock := newMock(t)
	rows := [][]any{{"2022-06-01", "2022-07-12", 1294.0, "a.csv"}, {"2022-05-01", "2022-07-12", 1290.0, "a.csv"}}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_vintage_observations"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_vintage_observations"}, observationUpsert.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "vintage_observations"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, observationUpsert, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFailsRollsBack(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_vintage_observations"}, observationUpsert.Columns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err := BulkUpsert(context.Background(), mock, observationUpsert, [][]any{{"2022-06-01", "2022-07-12", 1.0, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_Validation(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, observationUpsert, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Table: "t", ConflictKeys: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no columns specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Table: "t", Columns: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no conflict keys specified")
}

func TestUpsertSQL(t *testing.T) {
	got := upsertSQL(observationUpsert, "_tmp")
	assert.Equal(t,
		`INSERT INTO "vintage_observations" ("observation_date", "vintage_date", "value", "source_file") `+
			`SELECT "observation_date", "vintage_date", "value", "source_file" FROM "_tmp" `+
			`ON CONFLICT ("observation_date", "vintage_date") DO UPDATE SET "value" = EXCLUDED."value", "source_file" = EXCLUDED."source_file"`,
		got)

	keysOnly := UpsertConfig{Table: "seen", Columns: []string{"id"}, ConflictKeys: []string{"id"}}
	assert.Contains(t, upsertSQL(keysOnly, "_tmp"), "ON CONFLICT (\"id\") DO NOTHING")
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"vintage_observations"`, sanitizeTable("vintage_observations"))
	assert.Equal(t, `"ons"."ap2y"`, sanitizeTable("ons.ap2y"))
	assert.Equal(t, "_tmp_upsert_ons_ap2y", tempTableName("ons.ap2y"))
}
