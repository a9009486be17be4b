package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bizsync/internal/client/migrations"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the primary store. The pool is limited to one connection:
// SQLite serializes writers anyway, and a single connection keeps readers
// from observing a transaction halfway.
type SQLiteStore struct {
	db   *sql.DB
	dbtx dbx.DBTX
	inTx bool
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// OpenSQLite opens (creating if needed) and migrates the database at dsn.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w: %w", common.ErrorStorage, err)
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w: %w", common.ErrorStorage, err)
	}

	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, dbtx: db}
}

func (s *SQLiteStore) Records() records.Repository   { return records.NewSQLiteRepository(s.dbtx) }
func (s *SQLiteStore) Queue() queue.Repository       { return queue.NewSQLiteRepository(s.dbtx) }
func (s *SQLiteStore) Metadata() metadata.Repository { return metadata.NewSQLiteRepository(s.dbtx) }

// InTx runs fn inside a database transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	var fnErr error
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		fnErr = fn(ctx, &SQLiteStore{db: s.db, dbtx: tx, inTx: true})
		return fnErr
	})
	if err != nil && fnErr == nil && !errors.Is(err, common.ErrorStorage) {
		// begin or commit failed
		return fmt.Errorf("sqlite transaction: %w: %w", common.ErrorStorage, err)
	}
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w: %w", common.ErrorStorage, err)
	}
	return nil
}
