package syncer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bizsync/internal/client/store"
)

// Refresh lists t from the server and merges the result into the Local
// Store:
//   - server records replace their local copies, except records that still
//     have queued changes;
//   - records that only exist locally (local ids) are kept;
//   - server-origin local copies missing from the server result are
//     dropped, unless they have queued changes.
//
// It runs under the drain lock, so a create that reached the server is
// always remapped locally before the server list is merged.
func (e *Engine) Refresh(ctx context.Context, t models.EntityType) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if !e.oracle.IsOnline() {
		return ErrOffline
	}

	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
	serverRecs, err := e.remote.List(callCtx, string(t))
	cancel()
	if err != nil {
		return fmt.Errorf("error listing %s: %w", t, err)
	}

	now := e.now()
	err = e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		all, err := tx.Queue().All(ctx)
		if err != nil {
			return err
		}
		busy := map[string]bool{}
		for _, en := range all {
			if en.EntityType == t {
				busy[en.RecordID] = true
			}
		}

		seen := make(map[string]bool, len(serverRecs))
		for _, sr := range serverRecs {
			if sr.ID == "" || models.IsLocalID(sr.ID) {
				continue
			}
			seen[sr.ID] = true
			if busy[sr.ID] {
				continue
			}
			rec := sr.Clone()
			rec.SavedAt = now
			rec.MarkSynced(now)
			if err := tx.Records().Put(ctx, t, rec); err != nil {
				return err
			}
		}

		local, err := tx.Records().GetAll(ctx, t)
		if err != nil {
			return err
		}
		for _, lr := range local {
			if lr.IsLocal() || seen[lr.ID] || busy[lr.ID] {
				continue
			}
			if err := tx.Records().Delete(ctx, t, lr.ID); err != nil {
				return err
			}
		}

		return metadata.SetJSON(ctx, tx.Metadata(), metadata.CacheKey(string(t)),
			metadata.CacheMeta{LastRefresh: now, ItemCount: len(serverRecs)})
	})
	if err != nil {
		return fmt.Errorf("error merging %s: %w", t, err)
	}

	e.logger.Debug(ctx, "refreshed from server", "type", t, "count", len(serverRecs))
	return nil
}

// RefreshAll refreshes every known entity type, stopping at the first
// failure. On success the last sync time is advanced.
func (e *Engine) RefreshAll(ctx context.Context) error {
	if !e.oracle.IsOnline() {
		return ErrOffline
	}
	for _, t := range models.KnownEntityTypes {
		if err := e.Refresh(ctx, t); err != nil {
			return err
		}
	}

	now := e.now()
	if err := e.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		return metadata.SetJSON(ctx, tx.Metadata(), metadata.KeyLastSync, now)
	}); err != nil {
		return fmt.Errorf("error saving last sync time: %w", err)
	}
	e.hub.update(func(s *Status) { s.LastSyncTime = &now })
	e.logger.Info(ctx, "full refresh from server finished", "types", len(models.KnownEntityTypes))
	return nil
}

// CacheMeta returns the last refresh of t, or ok=false if never refreshed.
func (e *Engine) CacheMeta(ctx context.Context, t models.EntityType) (metadata.CacheMeta, bool, error) {
	var m metadata.CacheMeta
	ok, err := metadata.GetJSON(ctx, e.store.Metadata(), metadata.CacheKey(string(t)), &m)
	return m, ok, err
}
