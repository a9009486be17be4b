package records

import (
	"context"
	"database/sql"
	"encoding/json"
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

const selectRecord = `SELECT company_id, type, id, data, created_at, updated_at
		FROM records`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.Record, error) {
	var (
		rec models.Record
		raw []byte
	)
	if err := s.Scan(&rec.CompanyID, &rec.Type, &rec.ID, &raw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &rec.Data); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", rec.ID, err)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	return &rec, nil
}

func (r *SQLRepository) query(ctx context.Context, query string, args ...any) ([]*models.Record, error) {
	rows, err := r.db.QueryContext(ctx, dbx.Rebind(r.dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) List(ctx context.Context, companyID, recordType string) ([]*models.Record, error) {
	return r.query(ctx, selectRecord+`
		WHERE company_id = ? AND type = ?
		ORDER BY updated_at, id`, companyID, recordType)
}

func (r *SQLRepository) ListCompany(ctx context.Context, companyID string) ([]*models.Record, error) {
	return r.query(ctx, selectRecord+`
		WHERE company_id = ?
		ORDER BY type, id`, companyID)
}

func (r *SQLRepository) Get(ctx context.Context, companyID, recordType, id string) (*models.Record, error) {
	return r.getOne(ctx, "", companyID, recordType, id)
}

func (r *SQLRepository) GetForUpdate(ctx context.Context, companyID, recordType, id string) (*models.Record, error) {
	return r.getOne(ctx, "\n\t\tFOR UPDATE", companyID, recordType, id)
}

func (r *SQLRepository) getOne(ctx context.Context, suffix, companyID, recordType, id string) (*models.Record, error) {
	query := selectRecord + `
		WHERE company_id = ? AND type = ? AND id = ?` + suffix

	rec, err := scanRecord(r.db.QueryRowContext(ctx, dbx.Rebind(r.dialect, query), companyID, recordType, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *SQLRepository) Insert(ctx context.Context, rec *models.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("%w: encode record: %w", common.ErrorValidation, err)
	}

	query := `INSERT INTO records (company_id, type, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, dbx.Rebind(r.dialect, query),
		rec.CompanyID, rec.Type, rec.ID, string(data), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return fmt.Errorf("record %s: %w", rec.ID, common.ErrorConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) Update(ctx context.Context, rec *models.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("%w: encode record: %w", common.ErrorValidation, err)
	}

	query := `UPDATE records SET data = ?, updated_at = ?
		WHERE company_id = ? AND type = ? AND id = ?`
	res, err := r.db.ExecContext(ctx, dbx.Rebind(r.dialect, query),
		string(data), rec.UpdatedAt, rec.CompanyID, rec.Type, rec.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectRow(res)
}

func (r *SQLRepository) Delete(ctx context.Context, companyID, recordType, id string) error {
	query := `DELETE FROM records
		WHERE company_id = ? AND type = ? AND id = ?`
	res, err := r.db.ExecContext(ctx, dbx.Rebind(r.dialect, query), companyID, recordType, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
