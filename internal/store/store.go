// Package store is the persistence layer of the inventory service: connection
// pool, schema migrations, transaction scope and integrity-error classification
// for PostgreSQL and SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite3"
	colID           = "id"
)

var (
	ErrNoRows            = errors.New("no rows in result set")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrNilStore          = errors.New("store is not configured")
)

// Config describes the connection pool.
type Config struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store owns the connection pool. It is safe for concurrent use.
type Store struct {
	db      *sqlx.DB
	driver  string
	dialect goqu.DialectWrapper
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger that receives SQL statements at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open connects to the database, applies pool limits and runs the embedded
// migrations for the configured driver.
func Open(ctx context.Context, cfg Config, options ...Option) (*Store, error) {
	var dsn, dialect string
	switch cfg.Driver {
	case DriverPostgres:
		dsn, dialect = cfg.URL, dialectPostgres
	case DriverSQLite:
		dsn, dialect = sqliteDSN(cfg.URL), dialectSQLite
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// single writer
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:      db,
		driver:  cfg.Driver,
		dialect: goqu.Dialect(dialect),
		tracer:  otel.Tracer("libraryinfo/store"),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// sqliteDSN turns a file path (optionally with a "sqlite://" prefix) into a
// modernc DSN with foreign keys enforced.
func sqliteDSN(url string) string {
	dsn := strings.TrimPrefix(url, "sqlite://")
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver reports the configured driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNilStore
	}
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	if s == nil || s.db == nil {
		return ErrNilStore
	}

	ctx, span := s.tracer.Start(ctx, "store.tx")
	defer span.End()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{tx: sqlTx, store: s}
	if err := fn(tx); err != nil {
		span.SetStatus(codes.Error, "rolled back")
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		span.RecordError(err)
		if ierr := classify(err); ierr != nil {
			return ierr
		}
		return fmt.Errorf("commit transaction: %w", err)
	}

	span.SetAttributes(attribute.Bool("tx.committed", true))
	return nil
}

// Query is any goqu dataset that renders to SQL.
type Query interface {
	ToSQL() (string, []interface{}, error)
}

// Tx is a transaction-scoped session. It is not safe for concurrent use.
type Tx struct {
	tx    *sqlx.Tx
	store *Store
}

// From starts a SELECT on table with prepared placeholders.
func (t *Tx) From(table ...interface{}) *goqu.SelectDataset {
	return t.store.dialect.From(table...).Prepared(true)
}

// Insert starts an INSERT into table with prepared placeholders.
func (t *Tx) Insert(table string) *goqu.InsertDataset {
	return t.store.dialect.Insert(table).Prepared(true)
}

// Update starts an UPDATE of table with prepared placeholders.
func (t *Tx) Update(table string) *goqu.UpdateDataset {
	return t.store.dialect.Update(table).Prepared(true)
}

// Delete starts a DELETE from table with prepared placeholders.
func (t *Tx) Delete(table string) *goqu.DeleteDataset {
	return t.store.dialect.Delete(table).Prepared(true)
}

// Get scans a single row into dest. A missing row yields ErrNoRows.
func (t *Tx) Get(ctx context.Context, dest interface{}, q Query) error {
	query, args, err := t.render(q)
	if err != nil {
		return err
	}

	ctx, span := t.start(ctx, "store.get", query)
	defer span.End()

	start := time.Now()
	err = t.tx.GetContext(ctx, dest, query, args...)
	t.logQuery(ctx, "get", query, start)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("row.found", false))
		return ErrNoRows
	}
	return t.fail(span, "get", err)
}

// Select scans all rows into dest, which must be a pointer to a slice.
func (t *Tx) Select(ctx context.Context, dest interface{}, q Query) error {
	query, args, err := t.render(q)
	if err != nil {
		return err
	}

	ctx, span := t.start(ctx, "store.select", query)
	defer span.End()

	start := time.Now()
	err = t.tx.SelectContext(ctx, dest, query, args...)
	t.logQuery(ctx, "select", query, start)
	return t.fail(span, "select", err)
}

// Exec runs a statement and returns the number of affected rows.
func (t *Tx) Exec(ctx context.Context, q Query) (int64, error) {
	query, args, err := t.render(q)
	if err != nil {
		return 0, err
	}

	ctx, span := t.start(ctx, "store.exec", query)
	defer span.End()

	start := time.Now()
	result, err := t.tx.ExecContext(ctx, query, args...)
	t.logQuery(ctx, "exec", query, start)
	if err != nil {
		return 0, t.fail(span, "exec", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, t.fail(span, "rows affected", err)
	}
	span.SetAttributes(attribute.Int64("rows.affected", affected))
	return affected, nil
}

// InsertReturningID runs an INSERT and returns the generated id.
// PostgreSQL uses RETURNING, SQLite reports the last insert rowid.
func (t *Tx) InsertReturningID(ctx context.Context, q *goqu.InsertDataset) (int64, error) {
	if t.store.driver == DriverPostgres {
		var id int64
		if err := t.Get(ctx, &id, q.Returning(colID)); err != nil {
			return 0, err
		}
		return id, nil
	}

	query, args, err := t.render(q)
	if err != nil {
		return 0, err
	}

	ctx, span := t.start(ctx, "store.insert", query)
	defer span.End()

	start := time.Now()
	result, err := t.tx.ExecContext(ctx, query, args...)
	t.logQuery(ctx, "insert", query, start)
	if err != nil {
		return 0, t.fail(span, "insert", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, t.fail(span, "last insert id", err)
	}
	return id, nil
}

func (t *Tx) render(q Query) (string, []interface{}, error) {
	query, args, err := q.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}
	return query, args, nil
}

func (t *Tx) start(ctx context.Context, name, query string) (context.Context, trace.Span) {
	return t.store.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", t.store.driver),
			attribute.String("db.statement", query),
		),
	)
}

// fail records err on span and returns it classified and wrapped.
func (t *Tx) fail(span trace.Span, op string, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	if ierr := classify(err); ierr != nil {
		span.SetAttributes(
			attribute.Bool("integrity.violation", true),
			attribute.String("integrity.kind", ierr.Kind.String()),
		)
		return ierr
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (t *Tx) logQuery(ctx context.Context, action, query string, start time.Time) {
	t.store.logger.DebugContext(ctx, "executed sql",
		slog.String("action", action),
		slog.String("query", query),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}
