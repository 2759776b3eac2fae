package pgstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/formulations/internal/core"
)

var insertIgnoring = regexp.QuoteMeta(`INSERT INTO "formulations"`) + `.*` + regexp.QuoteMeta(`ON CONFLICT (curp) DO NOTHING`)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock, "formulations")
}

func records(n int) []core.Record {
	out := make([]core.Record, n)
	for i := range out {
		out[i] = core.Record{
			CURP:      fmt.Sprintf("AAAA%06dHDFRRL01", i),
			CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Active:    true,
		}
	}
	return out
}

func TestInsertMany(t *testing.T) {
	ctx := context.Background()

	t.Run("Should count inserted and skipped rows", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(insertIgnoring).WillReturnResult(pgxmock.NewResult("INSERT", 2))
		mock.ExpectCommit()

		res, err := store.InsertMany(ctx, records(3), core.InsertOnly)
		require.NoError(t, err)
		assert.Equal(t, core.WriteResult{Inserted: 2, Skipped: 1}, res)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should split large batches into chunks", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(insertIgnoring).WillReturnResult(pgxmock.NewResult("INSERT", 600))
		mock.ExpectExec(insertIgnoring).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		res, err := store.InsertMany(ctx, records(insertChunkSize+1), core.InsertOnly)
		require.NoError(t, err)
		assert.Equal(t, 601, res.Inserted)
		assert.Equal(t, insertChunkSize+1-601, res.Skipped)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should roll back and report storage failures", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(insertIgnoring).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := store.InsertMany(ctx, records(2), core.InsertOnly)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrStorageUnavailable)
		assert.Contains(t, err.Error(), "insert records 1-2")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should reject full upsert without touching the database", func(t *testing.T) {
		mock, store := newMock(t)

		_, err := store.InsertMany(ctx, records(1), core.FullUpsert)
		assert.ErrorIs(t, err, core.ErrUnsupportedPolicy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should do nothing for an empty batch", func(t *testing.T) {
		mock, store := newMock(t)

		res, err := store.InsertMany(ctx, nil, core.InsertOnly)
		require.NoError(t, err)
		assert.Zero(t, res)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	insertPlain := regexp.QuoteMeta(`INSERT INTO "formulations"`)

	t.Run("Should assign an ID", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(insertPlain).WillReturnResult(pgxmock.NewResult("INSERT", 1))

		rec, err := store.Create(ctx, records(1)[0])
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should map unique violations to ErrDuplicateKey", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(insertPlain).WillReturnError(&pgconn.PgError{Code: uniqueViolation})

		_, err := store.Create(ctx, records(1)[0])
		assert.ErrorIs(t, err, core.ErrDuplicateKey)
	})

	t.Run("Should wrap other failures", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(insertPlain).WillReturnError(errors.New("boom"))

		_, err := store.Create(ctx, records(1)[0])
		assert.ErrorIs(t, err, core.ErrStorageUnavailable)
	})
}

func TestCreateStatementHasNoConflictClause(t *testing.T) {
	store := New(nil, "formulations")
	query, args, err := store.buildInsert(records(1), false)
	require.NoError(t, err)
	assert.NotContains(t, query, "ON CONFLICT")
	assert.Len(t, args, len(columns))
}

func TestExists(t *testing.T) {
	mock, store := newMock(t)
	curp := "AAAA010101HDFRRL01"

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS ( SELECT 1 FROM "formulations" WHERE curp = $1 )`)).
		WithArgs(curp).
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))

	found, err := store.Exists(context.Background(), curp)
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	mock, store := newMock(t)
	avg := 8.5
	newer := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)

	rows := mock.NewRows(columns).
		AddRow("id-2", "Ana", "", "", "BBBB010101HDFRRL02", "", "", "", "", "", "", &avg, "regular", "", "", []string{"x"}, newer, true).
		AddRow("id-1", "Luis", "", "", "AAAA010101HDFRRL01", "", "", "", "", "", "", (*float64)(nil), "", "", "", []string(nil), older, true)
	mock.ExpectQuery(`SELECT .* FROM "formulations" ORDER BY fecha DESC`).WillReturnRows(rows)

	got, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "id-2", got[0].ID)
	assert.Equal(t, core.StatusRegular, got[0].Status)
	assert.Equal(t, &avg, got[0].Average)
	assert.Equal(t, []string{"x"}, got[0].Fulfilled)
	assert.Nil(t, got[1].Average)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "formulations"`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	sql := store.schemaSQL()
	assert.Contains(t, sql, "CONSTRAINT formulations_curp_key UNIQUE (curp)")
	assert.Contains(t, sql, `ON "formulations" (fecha DESC)`)
	assert.False(t, strings.Contains(sql, "{{"), "template placeholders left in DDL")
}

func TestPing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := New(mock, "formulations")

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorIs(t, store.Ping(context.Background()), core.ErrStorageUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
