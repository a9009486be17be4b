package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bizsync/internal/client/client"
	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bizsync/internal/client/store"
	"github.com/google/uuid"
)

// ErrOffline is returned by Sync when the oracle reports offline.
var ErrOffline = errors.New("offline")

// outcome of one entry
type outcome int

const (
	outcomeDone outcome = iota
	outcomeDead
	outcomeRetry
)

// Sync drains the whole queue now, ignoring backoff. The returned error
// is ErrOffline or a local storage failure; remote failures are in the
// report.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	if !e.oracle.IsOnline() {
		e.refreshCounts(ctx)
		return &Report{Offline: true}, ErrOffline
	}
	rep := e.drain(ctx, nil)
	return rep, rep.StoreErr
}

// drain processes the given types (all queued types when nil).
func (e *Engine) drain(ctx context.Context, types []models.EntityType) *Report {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	rep := newReport()
	e.hub.update(func(s *Status) { s.Syncing = true })
	defer func() {
		e.finishDrain(ctx, rep)
	}()

	if r, ok := e.store.(recoverer); ok {
		if err := r.Recover(ctx); err != nil {
			e.logger.Warn(ctx, "primary local store not recovered yet", "error", err)
		}
	}

	if types == nil {
		var err error
		types, err = e.store.Queue().Types(ctx)
		if err != nil {
			rep.StoreErr = err
			return rep
		}
	}

	for _, t := range types {
		if !e.oracle.IsOnline() {
			rep.Offline = true
			return rep
		}
		if err := e.drainType(ctx, t, rep); err != nil {
			rep.StoreErr = err
			return rep
		}
		if ctx.Err() != nil {
			return rep
		}
	}
	return rep
}

func (e *Engine) drainType(ctx context.Context, t models.EntityType, rep *Report) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !e.oracle.IsOnline() {
			rep.Offline = true
			return nil
		}

		pending, err := e.store.Queue().Pending(ctx, t)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		res, err := e.process(ctx, pending[0], rep)
		if err != nil {
			return err
		}
		switch res {
		case outcomeDone:
			rep.Synced++
		case outcomeDead:
			rep.DeadLettered++
		case outcomeRetry:
			rep.Blocked = append(rep.Blocked, t)
			return nil
		}
	}
}

func (e *Engine) finishDrain(ctx context.Context, rep *Report) {
	now := e.now()
	var lastErr string
	for _, err := range rep.Errs {
		lastErr = err.Error()
	}
	if rep.StoreErr != nil {
		lastErr = rep.StoreErr.Error()
		e.logger.Error(ctx, "sync aborted by local storage failure", "error", rep.StoreErr)
	}

	if rep.Clean() {
		e.backoff.reset()
		if err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
			return metadata.SetJSON(ctx, tx.Metadata(), metadata.KeyLastSync, now)
		}); err != nil {
			e.logger.Warn(ctx, "could not persist last sync time", "error", err)
		}
		e.hub.update(func(s *Status) {
			s.LastSyncTime = &now
			s.LastError = ""
		})
	} else if len(rep.Blocked) > 0 {
		wait := e.backoff.fail(now)
		e.logger.Info(ctx, "sync incomplete, backing off", "blocked", rep.Blocked, "wait", wait)
	}

	e.hub.update(func(s *Status) {
		s.Syncing = false
		if lastErr != "" {
			s.LastError = lastErr
		}
	})
	e.refreshCounts(ctx)

	if rep.Synced > 0 || rep.DeadLettered > 0 {
		e.logger.Info(ctx, "sync finished", "synced", rep.Synced, "dead", rep.DeadLettered, "remapped", len(rep.Remapped))
	}
}

// process sends one entry and applies the server's answer locally.
func (e *Engine) process(ctx context.Context, en *models.QueueEntry, rep *Report) (outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
	defer cancel()

	switch en.Operation {
	case models.OpCreate:
		if en.Payload == nil {
			return e.fail(ctx, en, fmt.Errorf("%w: create without payload", client.ErrRejected), rep)
		}
		created, err := e.remote.Create(callCtx, string(en.EntityType), en.Payload)
		if err != nil {
			return e.fail(ctx, en, err, rep)
		}
		return outcomeDone, e.applyCreate(ctx, en, created, rep)

	case models.OpUpdate:
		fields := map[string]any{}
		if en.Payload != nil {
			fields = en.Payload.WireFields()
			delete(fields, models.FieldID)
		}
		if err := e.remote.Update(callCtx, string(en.EntityType), en.RecordID, fields); err != nil {
			return e.fail(ctx, en, err, rep)
		}
		return outcomeDone, e.applyUpdate(ctx, en)

	case models.OpDelete:
		err := e.remote.Delete(callCtx, string(en.EntityType), en.RecordID)
		if err != nil && !errors.Is(err, client.ErrNotFound) {
			return e.fail(ctx, en, err, rep)
		}
		return outcomeDone, e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
			return tx.Queue().Remove(ctx, en.ID)
		})

	default:
		return e.fail(ctx, en, fmt.Errorf("%w: unknown operation %q", client.ErrRejected, en.Operation), rep)
	}
}

// applyCreate replaces the local id with the server id. The entry and the
// record are re-read: either may have changed while the call was in flight.
func (e *Engine) applyCreate(ctx context.Context, sent *models.QueueEntry, created *models.Record, rep *Report) error {
	t, localID, serverID := sent.EntityType, sent.RecordID, created.ID

	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		cur, err := tx.Queue().Get(ctx, sent.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			// deleted locally during the call; undo on the server
			return tx.Queue().Enqueue(ctx, &models.QueueEntry{
				ID:         uuid.NewString(),
				Operation:  models.OpDelete,
				EntityType: t,
				RecordID:   serverID,
				EnqueuedAt: e.now(),
				State:      models.EntryPending,
			})
		}

		if err := tx.Queue().Retarget(ctx, t, localID, serverID); err != nil {
			return err
		}
		if cur.Revision != sent.Revision {
			// edited during the call; the newer payload goes out as an update
			cur, err = tx.Queue().Get(ctx, sent.ID)
			if err != nil {
				return err
			}
			cur.Operation = models.OpUpdate
			cur.RecordID = serverID
			if cur.Payload != nil {
				cur.Payload.ID = serverID
			}
			cur.Attempts = 0
			cur.LastError = ""
			if err := tx.Queue().Update(ctx, cur); err != nil {
				return err
			}
		} else if err := tx.Queue().Remove(ctx, sent.ID); err != nil {
			return err
		}

		local, err := tx.Records().Get(ctx, t, localID)
		if err != nil {
			return err
		}
		next := created.Clone()
		if local != nil {
			next = local.Clone()
			next.ID = serverID
			if !created.CreatedAt.IsZero() {
				next.CreatedAt = created.CreatedAt
			}
			if !created.UpdatedAt.IsZero() {
				next.UpdatedAt = created.UpdatedAt
			}
			for k, v := range created.Fields {
				if _, ok := next.Fields[k]; !ok {
					next.Fields[k] = v
				}
			}
		}

		left, err := tx.Queue().ForRecord(ctx, t, serverID)
		if err != nil {
			return err
		}
		if len(left) == 0 {
			next.MarkSynced(e.now())
		} else {
			next.PendingSync = true
		}
		return tx.Records().Remap(ctx, t, localID, next)
	})
	if err != nil {
		return err
	}

	rep.Remapped[localID] = serverID
	delete(rep.Errs, localID)
	return nil
}

func (e *Engine) applyUpdate(ctx context.Context, sent *models.QueueEntry) error {
	return e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		cur, err := tx.Queue().Get(ctx, sent.ID)
		if err != nil {
			return err
		}
		if cur != nil {
			if cur.Revision != sent.Revision {
				cur.Attempts = 0
				cur.LastError = ""
				if err := tx.Queue().Update(ctx, cur); err != nil {
					return err
				}
			} else if err := tx.Queue().Remove(ctx, sent.ID); err != nil {
				return err
			}
		}
		return e.markSyncedIfIdle(ctx, tx, sent.EntityType, sent.RecordID)
	})
}

// markSyncedIfIdle clears pendingSync once no entry targets the record.
func (e *Engine) markSyncedIfIdle(ctx context.Context, tx store.Store, t models.EntityType, id string) error {
	left, err := tx.Queue().ForRecord(ctx, t, id)
	if err != nil || len(left) > 0 {
		return err
	}
	rec, err := tx.Records().Get(ctx, t, id)
	if err != nil || rec == nil {
		return err
	}
	rec.MarkSynced(e.now())
	return tx.Records().Put(ctx, t, rec)
}

// fail records a failed attempt. Permanent errors, and transient ones past
// MaxAttempts, dead-letter the entry and every later entry for its record.
func (e *Engine) fail(ctx context.Context, sent *models.QueueEntry, cause error, rep *Report) (outcome, error) {
	if ctx.Err() != nil {
		// shutting down; not the entry's fault
		return outcomeRetry, nil
	}
	rep.Errs[sent.RecordID] = cause

	res := outcomeRetry
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		cur, err := tx.Queue().Get(ctx, sent.ID)
		if err != nil || cur == nil {
			return err
		}
		cur.Attempts++
		cur.LastError = cause.Error()

		if !client.IsPermanent(cause) && cur.Attempts < e.opts.MaxAttempts {
			return tx.Queue().Update(ctx, cur)
		}

		res = outcomeDead
		return e.deadLetter(ctx, tx, cur, cause)
	})
	if err != nil {
		return outcomeRetry, err
	}

	if res == outcomeDead {
		e.logger.Warn(ctx, "sync entry dead-lettered",
			"entry", sent.ID, "op", sent.Operation, "type", sent.EntityType, "record", sent.RecordID, "error", cause)
	} else {
		e.logger.Debug(ctx, "sync entry failed, will retry",
			"entry", sent.ID, "op", sent.Operation, "record", sent.RecordID, "error", cause)
	}
	return res, nil
}

func (e *Engine) deadLetter(ctx context.Context, tx store.Store, en *models.QueueEntry, cause error) error {
	en.State = models.EntryDead
	if err := tx.Queue().Update(ctx, en); err != nil {
		return err
	}

	entries, err := tx.Queue().ForRecord(ctx, en.EntityType, en.RecordID)
	if err != nil {
		return err
	}
	for _, later := range entries {
		if later.Seq <= en.Seq || later.State == models.EntryDead {
			continue
		}
		blockBehind(later, en)
		if err := tx.Queue().Update(ctx, later); err != nil {
			return err
		}
	}

	rec, err := tx.Records().Get(ctx, en.EntityType, en.RecordID)
	if err != nil || rec == nil {
		return err
	}
	rec.SyncError = cause.Error()
	return tx.Records().Put(ctx, en.EntityType, rec)
}
