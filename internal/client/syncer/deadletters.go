package syncer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/store"
	"github.com/dmitrijs2005/bizsync/internal/common"
)

// DeadLetters lists dead entries, oldest first.
func (e *Engine) DeadLetters(ctx context.Context) ([]*models.QueueEntry, error) {
	return e.store.Queue().DeadLetters(ctx)
}

// Requeue moves a dead entry back to pending with its attempts reset,
// together with every other dead entry for the same record so they go out
// in the order they were queued.
func (e *Engine) Requeue(ctx context.Context, entryID string) error {
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		en, err := tx.Queue().Get(ctx, entryID)
		if err != nil {
			return err
		}
		if en == nil {
			return fmt.Errorf("queue entry %s: %w", entryID, common.ErrorNotFound)
		}
		if en.State != models.EntryDead {
			return nil
		}

		entries, err := tx.Queue().ForRecord(ctx, en.EntityType, en.RecordID)
		if err != nil {
			return err
		}
		for _, x := range entries {
			if x.State != models.EntryDead {
				continue
			}
			x.State = models.EntryPending
			x.Attempts = 0
			x.LastError = ""
			if err := tx.Queue().Update(ctx, x); err != nil {
				return err
			}
		}

		rec, err := tx.Records().Get(ctx, en.EntityType, en.RecordID)
		if err != nil || rec == nil {
			return err
		}
		rec.SyncError = ""
		return tx.Records().Put(ctx, en.EntityType, rec)
	})
	if err != nil {
		return fmt.Errorf("error requeueing entry: %w", err)
	}

	e.refreshCounts(ctx)
	e.Kick()
	return nil
}

// Discard drops a dead entry. Discarding the create of a record that never
// reached the server also drops the record and its other entries, since
// they can no longer be synced.
func (e *Engine) Discard(ctx context.Context, entryID string) error {
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		en, err := tx.Queue().Get(ctx, entryID)
		if err != nil {
			return err
		}
		if en == nil {
			return fmt.Errorf("queue entry %s: %w", entryID, common.ErrorNotFound)
		}
		if en.State != models.EntryDead {
			return fmt.Errorf("queue entry %s is not dead: %w", entryID, common.ErrorValidation)
		}

		if en.Operation == models.OpCreate && models.IsLocalID(en.RecordID) {
			entries, err := tx.Queue().ForRecord(ctx, en.EntityType, en.RecordID)
			if err != nil {
				return err
			}
			for _, x := range entries {
				if err := tx.Queue().Remove(ctx, x.ID); err != nil {
					return err
				}
			}
			return tx.Records().Delete(ctx, en.EntityType, en.RecordID)
		}

		if err := tx.Queue().Remove(ctx, en.ID); err != nil {
			return err
		}
		left, err := tx.Queue().ForRecord(ctx, en.EntityType, en.RecordID)
		if err != nil || len(left) > 0 {
			return err
		}
		rec, err := tx.Records().Get(ctx, en.EntityType, en.RecordID)
		if err != nil || rec == nil {
			return err
		}
		rec.PendingSync = false
		rec.SyncError = ""
		return tx.Records().Put(ctx, en.EntityType, rec)
	})
	if err != nil {
		return fmt.Errorf("error discarding entry: %w", err)
	}

	e.refreshCounts(ctx)
	return nil
}
