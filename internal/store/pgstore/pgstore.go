// Package pgstore persists formulation records in PostgreSQL.
//
// Records live in a single table whose curp column carries a UNIQUE
// constraint. Bulk imports use INSERT ... ON CONFLICT (curp) DO NOTHING so
// existing rows are never modified and RowsAffected gives the number of
// records created.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/formulations/internal/core"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// insertChunkSize keeps a multi-row INSERT well below the 65535 bind
// parameter limit.
const insertChunkSize = 1000

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Options configures the connection pool.
type Options struct {
	URL             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// Store is a core.RecordStore backed by PostgreSQL.
type Store struct {
	db    DB
	table string
	close func()
}

var (
	_ core.RecordStore = (*Store)(nil)
	_ core.Pinger      = (*Store)(nil)
)

var columns = []string{
	"id",
	"nombre",
	"apellido_paterno",
	"apellido_materno",
	"curp",
	"telefono_casa",
	"telefono_celular",
	"correo_personal",
	"correo_institucional",
	"institucion",
	"carrera",
	"promedio",
	"estado",
	"grupo",
	"pdf_url",
	"fulfilled",
	"fecha",
	"activo",
}

// New wraps an existing connection. table is quoted before use.
func New(db DB, table string) *Store {
	return &Store{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
		close: func() {},
	}
}

// Open creates a pool and verifies the server is reachable.
func Open(ctx context.Context, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", core.ErrStorageUnavailable, err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", core.ErrStorageUnavailable, err)
	}

	s := New(pool, opts.Table)
	s.close = pool.Close
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}
	return nil
}

// InsertMany inserts every record whose CURP is not already stored. All
// chunks run in one transaction.
func (s *Store) InsertMany(ctx context.Context, records []core.Record, policy core.UpsertPolicy) (core.WriteResult, error) {
	if policy != core.InsertOnly {
		return core.WriteResult{}, fmt.Errorf("%w: %s", core.ErrUnsupportedPolicy, policy)
	}
	if len(records) == 0 {
		return core.WriteResult{}, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return core.WriteResult{}, fmt.Errorf("%w: begin: %w", core.ErrStorageUnavailable, err)
	}
	fail := func(err error) (core.WriteResult, error) {
		_ = tx.Rollback(ctx)
		return core.WriteResult{}, err
	}

	inserted := 0
	for start := 0; start < len(records); start += insertChunkSize {
		end := min(start+insertChunkSize, len(records))

		query, args, err := s.buildInsert(records[start:end], true)
		if err != nil {
			return fail(fmt.Errorf("build insert: %w", err))
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fail(fmt.Errorf("%w: insert records %d-%d: %w", core.ErrStorageUnavailable, start+1, end, err))
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return core.WriteResult{}, fmt.Errorf("%w: commit: %w", core.ErrStorageUnavailable, err)
	}
	return core.WriteResult{Inserted: inserted, Skipped: len(records) - inserted}, nil
}

// Create inserts a single record and assigns its ID.
func (s *Store) Create(ctx context.Context, rec core.Record) (core.Record, error) {
	rec.ID = uuid.NewString()

	query, args, err := s.buildInsert([]core.Record{rec}, false)
	if err != nil {
		return core.Record{}, fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.Record{}, core.ErrDuplicateKey
		}
		return core.Record{}, fmt.Errorf("%w: insert: %w", core.ErrStorageUnavailable, err)
	}
	return rec, nil
}

// Exists reports whether a record with curp is stored.
func (s *Store) Exists(ctx context.Context, curp string) (bool, error) {
	query, args, err := squirrel.Select("1").
		Prefix("SELECT EXISTS (").
		From(s.table).
		Where(squirrel.Eq{"curp": curp}).
		Suffix(")").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists: %w", err)
	}

	var found bool
	if err := s.db.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("%w: exists: %w", core.ErrStorageUnavailable, err)
	}
	return found, nil
}

// List returns every record, newest first.
func (s *Store) List(ctx context.Context) ([]core.Record, error) {
	query, args, err := squirrel.Select(columns...).
		From(s.table).
		OrderBy("fecha DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	var rows []recordRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: list: %w", core.ErrStorageUnavailable, err)
	}

	records := make([]core.Record, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	return records, nil
}

func (s *Store) buildInsert(records []core.Record, skipExisting bool) (string, []any, error) {
	b := squirrel.Insert(s.table).Columns(columns...).PlaceholderFormat(squirrel.Dollar)
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		b = b.Values(values(rec)...)
	}
	if skipExisting {
		b = b.Suffix("ON CONFLICT (curp) DO NOTHING")
	}
	return b.ToSql()
}
