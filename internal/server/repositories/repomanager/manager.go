// Package repomanager vends the SQL repositories for one database dialect
// and runs the embedded goose migrations.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/bizsync/internal/dbx"
	"github.com/dmitrijs2005/bizsync/internal/server/migrations"
	"github.com/dmitrijs2005/bizsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/bizsync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/bizsync/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Records(db dbx.DBTX) records.Repository
}

// SQLRepositoryManager binds repositories to a dialect.
type SQLRepositoryManager struct {
	dialect dbx.Dialect
}

// NewRepositoryManager returns a manager for d. Only postgres and mysql are
// served.
func NewRepositoryManager(d dbx.Dialect) (*SQLRepositoryManager, error) {
	switch d {
	case dbx.Postgres, dbx.MySQL:
		return &SQLRepositoryManager{dialect: d}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d)
	}
}

func (m *SQLRepositoryManager) Dialect() dbx.Dialect {
	return m.dialect
}

func (m *SQLRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLRepository(db, m.dialect)
}

func (m *SQLRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewSQLRepository(db, m.dialect)
}

func (m *SQLRepositoryManager) Records(db dbx.DBTX) records.Repository {
	return records.NewSQLRepository(db, m.dialect)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded scripts of the manager's dialect.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(migrations.GooseDialect(m.dialect)); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, migrations.Dir(m.dialect)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
