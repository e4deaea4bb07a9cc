// Package store persists a company's books in SQLite.
//
// Each company has its own database file. The schema is versioned with
// embedded goose migrations and applied on Open. Repository methods live on
// Queries, which runs either directly against the database or inside a
// transaction opened by WithTx.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"nexledger-reconciler/internal/company"
	pkgerrors "nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package state
var gooseMu sync.Mutex

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the repository methods for one connection or transaction
type Queries struct {
	db  querier
	now func() time.Time
}

// Store is an open company database
type Store struct {
	*Queries
	db      *sql.DB
	company company.Context
	logger  logger.Logger
}

// Options tunes the connection
type Options struct {
	BusyTimeout time.Duration
	Logger      logger.Logger
}

// DSN builds the modernc.org/sqlite connection string for path
func DSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Open opens (creating if needed) the company database and migrates it.
func Open(ctx context.Context, c company.Context, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithCompany(c.ID).WithComponent("store")

	if dir := filepath.Dir(c.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, pkgerrors.FileError(pkgerrors.CodeDirectoryError, dir, err)
		}
	}

	db, err := sql.Open("sqlite", DSN(c.DBPath, opts.BusyTimeout))
	if err != nil {
		return nil, mapError("open database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, mapError("open database", err)
	}

	if err := migrate(ctx, db, log); err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", c.DBPath).Debug("Company database opened")
	return &Store{
		Queries: &Queries{db: db, now: time.Now},
		db:      db,
		company: c,
		logger:  log,
	}, nil
}

type gooseLogger struct {
	log logger.Logger
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) { g.log.Errorf(format, v...) }
func (g gooseLogger) Printf(format string, v ...interface{}) { g.log.Debugf(format, v...) }

func migrate(ctx context.Context, db *sql.DB, log logger.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return pkgerrors.DatabaseError(pkgerrors.CodeMigrationFailed, "set dialect", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return pkgerrors.DatabaseError(pkgerrors.CodeMigrationFailed, "apply migrations", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, pkgerrors.DatabaseError(pkgerrors.CodeMigrationFailed, "set dialect", err)
	}
	v, err := goose.GetDBVersionContext(ctx, s.db)
	if err != nil {
		return 0, mapError("read schema version", err)
	}
	return v, nil
}

// Company returns the company this store belongs to
func (s *Store) Company() company.Context {
	return s.company
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn in one transaction; any error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.WithError(rbErr).Warn("Rollback failed")
			}
		}
	}()

	if err = fn(&Queries{db: tx, now: s.now}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapError("commit transaction", err)
	}
	return nil
}

// SetClock replaces the timestamp source; used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (q *Queries) timestamp() string {
	return q.now().UTC().Format(time.RFC3339)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
