package syncer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/client/client"
	"github.com/dmitrijs2005/bizsync/internal/client/connectivity"
	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bizsync/internal/client/store"
	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/logging"
	"github.com/google/uuid"
)

// recoverer is implemented by store.FallbackStore.
type recoverer interface {
	Recover(ctx context.Context) error
	Degraded() bool
}

type Engine struct {
	store  store.Store
	remote client.Remote
	oracle connectivity.Oracle
	logger logging.Logger
	opts   Options

	// drainMu serializes drains and refreshes.
	drainMu sync.Mutex
	kickCh  chan struct{}
	backoff backoff
	hub     statusHub

	runMu   sync.Mutex
	running bool
}

func New(s store.Store, r client.Remote, o connectivity.Oracle, l logging.Logger, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		store:   s,
		remote:  r,
		oracle:  o,
		logger:  l.With("module", "syncer"),
		opts:    opts,
		kickCh:  make(chan struct{}, 1),
		backoff: backoff{base: opts.BackoffBase, max: opts.BackoffMax},
	}
	e.hub.status.Online = o.IsOnline()
	return e
}

func (e *Engine) now() time.Time {
	return e.opts.Now().UTC()
}

// Store returns the store the engine writes to.
func (e *Engine) Store() store.Store {
	return e.store
}

// Oracle returns the connectivity oracle the engine follows.
func (e *Engine) Oracle() connectivity.Oracle {
	return e.oracle
}

// StageCreate writes rec to the Local Store under a new local id with
// pendingSync set and enqueues a create entry, atomically. A record that
// already carries a server id is staged as an update instead.
func (e *Engine) StageCreate(ctx context.Context, t models.EntityType, rec *models.Record) (*models.Record, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = models.NewRecord(nil)
	}

	if rec.ID != "" {
		existing, err := e.store.Records().Get(ctx, t, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("error reading record: %w", err)
		}
		if existing != nil {
			return e.StageUpdate(ctx, t, rec.ID, rec.Fields)
		}
		if !models.IsLocalID(rec.ID) {
			return e.stageUpsert(ctx, t, rec)
		}
	}

	now := e.now()
	staged := rec.Clone()
	if staged.ID == "" {
		staged.ID = models.NewLocalID()
	}
	if staged.CreatedAt.IsZero() {
		staged.CreatedAt = now
	}
	staged.UpdatedAt = now
	staged.SavedAt = now
	staged.PendingSync = true
	staged.SyncedAt = nil
	staged.SyncError = ""

	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Records().Put(ctx, t, staged); err != nil {
			return err
		}
		return tx.Queue().Enqueue(ctx, &models.QueueEntry{
			ID:         uuid.NewString(),
			Operation:  models.OpCreate,
			EntityType: t,
			RecordID:   staged.ID,
			Payload:    staged.Clone(),
			EnqueuedAt: now,
			State:      models.EntryPending,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("error saving record: %w", err)
	}

	e.refreshCounts(ctx)
	return staged.Clone(), nil
}

// stageUpsert stores a server-id record that is not cached locally and
// queues all of its fields as an update.
func (e *Engine) stageUpsert(ctx context.Context, t models.EntityType, rec *models.Record) (*models.Record, error) {
	now := e.now()
	staged := rec.Clone()
	staged.UpdatedAt = now
	staged.SavedAt = now
	staged.PendingSync = true

	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Records().Put(ctx, t, staged); err != nil {
			return err
		}
		return e.enqueueUpdate(ctx, tx, t, staged.ID, staged.Fields, now)
	})
	if err != nil {
		return nil, fmt.Errorf("error saving record: %w", err)
	}

	e.refreshCounts(ctx)
	return staged.Clone(), nil
}

// StageUpdate merges partial into the local record and records the change.
// Changes to a record that still has a local id are folded into its
// pending create, so nothing reaches the server before the create does.
func (e *Engine) StageUpdate(ctx context.Context, t models.EntityType, id string, partial map[string]any) (*models.Record, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var updated *models.Record
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		cur, err := tx.Records().Get(ctx, t, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("record %s/%s: %w", t, id, common.ErrorNotFound)
		}

		now := e.now()
		updated = cur.Clone()
		updated.Merge(partial)
		updated.UpdatedAt = now
		updated.SavedAt = now
		updated.PendingSync = true
		if err := tx.Records().Put(ctx, t, updated); err != nil {
			return err
		}

		if models.IsLocalID(id) {
			return e.coalesceCreate(ctx, tx, t, updated, now)
		}
		return e.enqueueUpdate(ctx, tx, t, id, partial, now)
	})
	if err != nil {
		return nil, fmt.Errorf("error updating record: %w", err)
	}

	e.refreshCounts(ctx)
	return updated.Clone(), nil
}

// coalesceCreate replaces the payload of the record's create entry with
// the current local state.
func (e *Engine) coalesceCreate(ctx context.Context, tx store.Store, t models.EntityType, rec *models.Record, now time.Time) error {
	entries, err := tx.Queue().ForRecord(ctx, t, rec.ID)
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		en := entries[i]
		if en.Operation != models.OpCreate {
			continue
		}
		en.Payload = rec.Clone()
		en.Revision++
		return tx.Queue().Update(ctx, en)
	}

	// the create entry was discarded; start over
	return tx.Queue().Enqueue(ctx, &models.QueueEntry{
		ID:         uuid.NewString(),
		Operation:  models.OpCreate,
		EntityType: t,
		RecordID:   rec.ID,
		Payload:    rec.Clone(),
		EnqueuedAt: now,
		State:      models.EntryPending,
	})
}

// firstDead returns the earliest dead entry, or nil.
func firstDead(entries []*models.QueueEntry) *models.QueueEntry {
	for _, en := range entries {
		if en.State == models.EntryDead {
			return en
		}
	}
	return nil
}

// blockBehind queues en dead behind blocker so it cannot overtake it.
// It is a no-op when blocker is nil.
func blockBehind(en, blocker *models.QueueEntry) {
	if blocker == nil {
		return
	}
	en.State = models.EntryDead
	en.LastError = fmt.Sprintf("blocked by dead entry %s", blocker.ID)
}

// enqueueUpdate folds partial into the record's newest entry when that is
// an update still waiting to be sent, and appends a new update otherwise.
// While the record has a dead entry new changes queue dead behind it.
func (e *Engine) enqueueUpdate(ctx context.Context, tx store.Store, t models.EntityType, id string, partial map[string]any, now time.Time) error {
	entries, err := tx.Queue().ForRecord(ctx, t, id)
	if err != nil {
		return err
	}
	blocker := firstDead(entries)
	if n := len(entries); n > 0 {
		last := entries[n-1]
		waiting := last.State == models.EntryPending || (blocker != nil && last.ID != blocker.ID)
		if waiting && last.Operation == models.OpUpdate {
			if last.Payload == nil {
				last.Payload = &models.Record{ID: id}
			}
			last.Payload.Merge(partial)
			last.Revision++
			return tx.Queue().Update(ctx, last)
		}
	}

	en := &models.QueueEntry{
		ID:         uuid.NewString(),
		Operation:  models.OpUpdate,
		EntityType: t,
		RecordID:   id,
		Payload:    &models.Record{ID: id, Fields: maps.Clone(partial)},
		EnqueuedAt: now,
		State:      models.EntryPending,
	}
	blockBehind(en, blocker)
	return tx.Queue().Enqueue(ctx, en)
}

// StageDelete removes the record locally. For a record that never reached
// the server its queued entries are cancelled; otherwise a delete entry is
// queued. Deleting an absent id is not an error.
func (e *Engine) StageDelete(ctx context.Context, t models.EntityType, id string) error {
	if err := t.Validate(); err != nil {
		return err
	}

	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		entries, err := tx.Queue().ForRecord(ctx, t, id)
		if err != nil {
			return err
		}
		if err := tx.Records().Delete(ctx, t, id); err != nil {
			return err
		}

		if models.IsLocalID(id) {
			for _, en := range entries {
				if err := tx.Queue().Remove(ctx, en.ID); err != nil {
					return err
				}
			}
			return nil
		}

		// updates behind a dead entry are superseded too, but the dead
		// entry itself stays for the user to retry or discard
		blocker := firstDead(entries)
		hasDelete := false
		for _, en := range entries {
			waiting := en.State == models.EntryPending || (blocker != nil && en.ID != blocker.ID)
			switch {
			case en.Operation == models.OpDelete && waiting:
				hasDelete = true
			case en.Operation == models.OpUpdate && waiting:
				if err := tx.Queue().Remove(ctx, en.ID); err != nil {
					return err
				}
			}
		}
		if hasDelete {
			return nil
		}

		del := &models.QueueEntry{
			ID:         uuid.NewString(),
			Operation:  models.OpDelete,
			EntityType: t,
			RecordID:   id,
			EnqueuedAt: e.now(),
			State:      models.EntryPending,
		}
		blockBehind(del, blocker)
		return tx.Queue().Enqueue(ctx, del)
	})
	if err != nil {
		return fmt.Errorf("error deleting record: %w", err)
	}

	e.refreshCounts(ctx)
	return nil
}

// Create stages rec and, when online, syncs it before returning.
func (e *Engine) Create(ctx context.Context, t models.EntityType, rec *models.Record) (Result, error) {
	staged, err := e.StageCreate(ctx, t, rec)
	if err != nil {
		return Result{}, err
	}
	return e.settle(ctx, t, staged.ID)
}

// Update stages the change and, when online, syncs it before returning.
func (e *Engine) Update(ctx context.Context, t models.EntityType, id string, partial map[string]any) (Result, error) {
	staged, err := e.StageUpdate(ctx, t, id, partial)
	if err != nil {
		return Result{}, err
	}
	return e.settle(ctx, t, staged.ID)
}

// Delete stages the deletion and, when online, syncs it before returning.
func (e *Engine) Delete(ctx context.Context, t models.EntityType, id string) (Result, error) {
	if err := e.StageDelete(ctx, t, id); err != nil {
		return Result{}, err
	}
	return e.settle(ctx, t, id)
}

// settle drains the type when online and reports where the record stands.
func (e *Engine) settle(ctx context.Context, t models.EntityType, id string) (Result, error) {
	var rep *Report
	if e.oracle.IsOnline() {
		rep = e.drain(ctx, []models.EntityType{t})
		if newID, ok := rep.Remapped[id]; ok {
			id = newID
		}
	}

	rec, err := e.store.Records().Get(ctx, t, id)
	if err != nil {
		return Result{}, fmt.Errorf("error reading record: %w", err)
	}
	entries, err := e.store.Queue().ForRecord(ctx, t, id)
	if err != nil {
		return Result{}, fmt.Errorf("error reading queue: %w", err)
	}

	res := Result{Status: StatusSynced, Record: rec}
	for _, en := range entries {
		if en.State == models.EntryDead {
			return Result{Status: StatusDeadLettered, Record: rec, Err: errors.New(en.LastError)}, nil
		}
		res.Status = StatusQueued
		if en.LastError != "" {
			res.Err = errors.New(en.LastError)
		}
	}
	if res.Status == StatusQueued && rep != nil {
		if err, ok := rep.Errs[id]; ok {
			res.Err = err
		}
	}
	return res, nil
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	return e.hub.get()
}

// Subscribe registers fn for status changes.
func (e *Engine) Subscribe(fn func(Status)) (unsubscribe func()) {
	return e.hub.subscribe(fn)
}

// LoadStatus reads counts and the last sync time from the store.
func (e *Engine) LoadStatus(ctx context.Context) error {
	var last time.Time
	ok, err := metadata.GetJSON(ctx, e.store.Metadata(), metadata.KeyLastSync, &last)
	if err != nil {
		return err
	}
	if ok {
		e.hub.update(func(s *Status) { s.LastSyncTime = &last })
	}
	e.refreshCounts(ctx)
	return nil
}

func (e *Engine) refreshCounts(ctx context.Context) {
	counts, err := e.store.Queue().Counts(ctx)
	if err != nil {
		e.logger.Warn(ctx, "could not count queue entries", "error", err)
		return
	}
	degraded := false
	if r, ok := e.store.(recoverer); ok {
		degraded = r.Degraded()
	}
	e.hub.update(func(s *Status) {
		s.Pending = counts.Pending
		s.Dead = counts.Dead
		s.Online = e.oracle.IsOnline()
		s.Degraded = degraded
	})
}
