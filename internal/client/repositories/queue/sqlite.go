package queue

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
	"github.com/google/uuid"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `seq, id, operation, entity_type, record_id, payload, enqueued_at, attempts, last_error, revision, state`

func storageErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, common.ErrorStorage, err)
}

// Enqueue appends an entry to the end of the queue.
func (r *SQLiteRepository) Enqueue(ctx context.Context, e *models.QueueEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.State == "" {
		e.State = models.EntryPending
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now().UTC()
	}

	payload, err := encodePayload(e.Payload)
	if err != nil {
		return err
	}

	var seq any
	if e.Seq != 0 {
		seq = e.Seq
	}

	query := `INSERT INTO sync_queue (seq, id, operation, entity_type, record_id, payload, enqueued_at, attempts, last_error, revision, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq`
	err = r.db.QueryRowContext(ctx, query,
		seq, e.ID, string(e.Operation), string(e.EntityType), e.RecordID, payload,
		e.EnqueuedAt.UTC().Format(time.RFC3339Nano), e.Attempts, e.LastError, e.Revision, string(e.State),
	).Scan(&e.Seq)
	if err != nil {
		return storageErr("enqueue", err)
	}
	return nil
}

// Get returns an entry by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.QueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sync_queue WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get queue entry", err)
	}
	return e, nil
}

// Pending returns pending entries of one type ordered by seq.
func (r *SQLiteRepository) Pending(ctx context.Context, t models.EntityType) ([]*models.QueueEntry, error) {
	return r.query(ctx, "select pending entries",
		`SELECT `+selectColumns+` FROM sync_queue WHERE entity_type = ? AND state = ? ORDER BY seq`,
		string(t), string(models.EntryPending))
}

// ForRecord returns all entries targeting one record ordered by seq.
func (r *SQLiteRepository) ForRecord(ctx context.Context, t models.EntityType, recordID string) ([]*models.QueueEntry, error) {
	return r.query(ctx, "select record entries",
		`SELECT `+selectColumns+` FROM sync_queue WHERE entity_type = ? AND record_id = ? ORDER BY seq`,
		string(t), recordID)
}

// DeadLetters returns all dead entries ordered by seq.
func (r *SQLiteRepository) DeadLetters(ctx context.Context) ([]*models.QueueEntry, error) {
	return r.query(ctx, "select dead letters",
		`SELECT `+selectColumns+` FROM sync_queue WHERE state = ? ORDER BY seq`,
		string(models.EntryDead))
}

// All returns every entry ordered by seq.
func (r *SQLiteRepository) All(ctx context.Context) ([]*models.QueueEntry, error) {
	return r.query(ctx, "select queue", `SELECT `+selectColumns+` FROM sync_queue ORDER BY seq`)
}

// Update rewrites the mutable columns of an entry.
func (r *SQLiteRepository) Update(ctx context.Context, e *models.QueueEntry) error {
	payload, err := encodePayload(e.Payload)
	if err != nil {
		return err
	}

	query := `UPDATE sync_queue SET operation = ?, record_id = ?, payload = ?, attempts = ?,
			last_error = ?, revision = ?, state = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		string(e.Operation), e.RecordID, payload, e.Attempts, e.LastError, e.Revision, string(e.State), e.ID)
	if err != nil {
		return storageErr("update queue entry", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return storageErr("get rows affected", err)
	}
	if ra != 1 {
		return fmt.Errorf("update queue entry %s: %w", e.ID, common.ErrorNotFound)
	}
	return nil
}

// Remove deletes an entry; removing a missing entry is not an error.
func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return storageErr("remove queue entry", err)
	}
	return nil
}

// Retarget rewrites the record id of entries after an id remap. Payload
// ids are rewritten too.
func (r *SQLiteRepository) Retarget(ctx context.Context, t models.EntityType, oldID, newID string) error {
	entries, err := r.ForRecord(ctx, t, oldID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		e.RecordID = newID
		if e.Payload != nil {
			e.Payload.ID = newID
		}
		if err := r.Update(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Types lists entity types with pending entries, ordered by their oldest entry.
func (r *SQLiteRepository) Types(ctx context.Context) ([]models.EntityType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entity_type FROM sync_queue WHERE state = ? GROUP BY entity_type ORDER BY MIN(seq)`,
		string(models.EntryPending))
	if err != nil {
		return nil, storageErr("select queue types", err)
	}
	defer rows.Close()

	var result []models.EntityType
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, storageErr("scan queue type", err)
		}
		result = append(result, models.EntityType(t))
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate queue types", err)
	}
	return result, nil
}

// Counts returns pending and dead totals.
func (r *SQLiteRepository) Counts(ctx context.Context) (models.QueueCounts, error) {
	var c models.QueueCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0)
		FROM sync_queue`,
		string(models.EntryPending), string(models.EntryDead)).Scan(&c.Pending, &c.Dead)
	if err != nil {
		return c, storageErr("count queue", err)
	}
	return c, nil
}

// Clear drops every entry.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return storageErr("clear queue", err)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var result []*models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*models.QueueEntry, error) {
	var (
		e                             models.QueueEntry
		op, entityType, state, queued string
		payload                       sql.NullString
	)
	err := s.Scan(&e.Seq, &e.ID, &op, &entityType, &e.RecordID, &payload, &queued,
		&e.Attempts, &e.LastError, &e.Revision, &state)
	if err != nil {
		return nil, err
	}
	e.Operation = models.Operation(op)
	e.EntityType = models.EntityType(entityType)
	e.State = models.EntryState(state)

	if e.EnqueuedAt, err = time.Parse(time.RFC3339Nano, queued); err != nil {
		return nil, fmt.Errorf("parse enqueued_at: %w", err)
	}
	if payload.Valid && payload.String != "" {
		e.Payload = &models.Record{}
		if err := json.Unmarshal([]byte(payload.String), e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func encodePayload(p *models.Record) (any, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}
