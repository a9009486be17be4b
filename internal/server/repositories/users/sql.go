package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/dbx"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
	"github.com/dmitrijs2005/bizsync/internal/server/repositories/dberr"
)

type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

const selectUser = `SELECT id, email, password_hash, display_name, company_id, company_name, role, created_at
		 FROM users`

func (r *SQLRepository) Create(ctx context.Context, user *models.User) error {
	query :=
		`INSERT INTO users (id, email, password_hash, display_name, company_id, company_name, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, dbx.Rebind(r.dialect, query),
		user.ID, user.Email, user.PasswordHash, user.DisplayName,
		user.CompanyID, user.CompanyName, user.Role, user.CreatedAt)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, common.ErrorConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, selectUser+"\n\t\t WHERE email = ?", email)
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, selectUser+"\n\t\t WHERE id = ?", id)
}

func (r *SQLRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRowContext(ctx, dbx.Rebind(r.dialect, query), arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CompanyID, &u.CompanyName, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}
