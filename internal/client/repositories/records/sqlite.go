package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, data, created_at, updated_at, pending_sync, saved_at, synced_at, sync_error`

func storageErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, common.ErrorStorage, err)
}

// Put upserts a record by (entity type, id).
func (r *SQLiteRepository) Put(ctx context.Context, t models.EntityType, rec *models.Record) error {
	return put(ctx, r.db, t, rec)
}

func put(ctx context.Context, db dbx.DBTX, t models.EntityType, rec *models.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("put record: %w: empty id", common.ErrorValidation)
	}

	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}

	query := `INSERT INTO records (entity_type, id, data, created_at, updated_at, pending_sync, saved_at, synced_at, sync_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_type, id) DO UPDATE SET data = excluded.data,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				pending_sync = excluded.pending_sync,
				saved_at = excluded.saved_at,
				synced_at = excluded.synced_at,
				sync_error = excluded.sync_error
	`
	_, err = db.ExecContext(ctx, query,
		string(t), rec.ID, string(data),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		rec.PendingSync, formatTime(rec.SavedAt), formatTimePtr(rec.SyncedAt), rec.SyncError)
	if err != nil {
		return storageErr("upsert record", err)
	}
	return nil
}

// Get returns the record or (nil, nil) if the id is absent.
func (r *SQLiteRepository) Get(ctx context.Context, t models.EntityType, id string) (*models.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM records WHERE entity_type = ? AND id = ?`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, string(t), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get record", err)
	}
	return rec, nil
}

// GetAll lists all records of a type.
func (r *SQLiteRepository) GetAll(ctx context.Context, t models.EntityType) ([]*models.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM records WHERE entity_type = ?`
	rows, err := r.db.QueryContext(ctx, query, string(t))
	if err != nil {
		return nil, storageErr("select records", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr("scan record", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate records", err)
	}
	return result, nil
}

// Delete removes the record. Missing ids are not an error.
func (r *SQLiteRepository) Delete(ctx context.Context, t models.EntityType, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE entity_type = ? AND id = ?`, string(t), id)
	if err != nil {
		return storageErr("delete record", err)
	}
	return nil
}

// Remap replaces oldID with rec.ID atomically.
func (r *SQLiteRepository) Remap(ctx context.Context, t models.EntityType, oldID string, rec *models.Record) error {
	if db, ok := r.db.(*sql.DB); ok {
		err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return remap(ctx, tx, t, oldID, rec)
		})
		if err != nil && !errors.Is(err, common.ErrorStorage) {
			return storageErr("remap record", err)
		}
		return err
	}
	return remap(ctx, r.db, t, oldID, rec)
}

func remap(ctx context.Context, db dbx.DBTX, t models.EntityType, oldID string, rec *models.Record) error {
	if oldID != rec.ID {
		if _, err := db.ExecContext(ctx, `DELETE FROM records WHERE entity_type = ? AND id = ?`, string(t), oldID); err != nil {
			return storageErr("remove local row", err)
		}
	}
	return put(ctx, db, t, rec)
}

// Types lists entity types that have at least one record.
func (r *SQLiteRepository) Types(ctx context.Context) ([]models.EntityType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT entity_type FROM records ORDER BY entity_type`)
	if err != nil {
		return nil, storageErr("select entity types", err)
	}
	defer rows.Close()

	var result []models.EntityType
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, storageErr("scan entity type", err)
		}
		result = append(result, models.EntityType(t))
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate entity types", err)
	}
	return result, nil
}

// Count returns the number of records of a type.
func (r *SQLiteRepository) Count(ctx context.Context, t models.EntityType) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE entity_type = ?`, string(t)).Scan(&n)
	if err != nil {
		return 0, storageErr("count records", err)
	}
	return n, nil
}

// Clear removes every record of every type.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return storageErr("clear records", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*models.Record, error) {
	var (
		rec                           models.Record
		data, created, updated, saved string
		synced                        sql.NullString
	)
	if err := s.Scan(&rec.ID, &data, &created, &updated, &rec.PendingSync, &saved, &synced, &rec.SyncError); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}

	var err error
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if rec.SavedAt, err = parseTime(saved); err != nil {
		return nil, err
	}
	if synced.Valid && synced.String != "" {
		t, err := parseTime(synced.String)
		if err != nil {
			return nil, err
		}
		rec.SyncedAt = &t
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
