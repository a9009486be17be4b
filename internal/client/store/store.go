// Package store groups the client repositories into one unit of work.
//
// A Store hands out the Local Store (records), the Sync Queue and the
// metadata repository, and runs multi-step mutations atomically through
// InTx. Three implementations exist:
//
//   - SQLiteStore: the primary, durable store (modernc.org/sqlite + goose).
//   - FileStore: an in-memory store that optionally snapshots itself to a
//     JSON file; used as the secondary persistence path.
//   - FallbackStore: writes to the primary and switches to the secondary
//     when the primary reports a storage failure, copying data back once
//     the primary recovers.
//
// Callers must not use the outer store from inside an InTx callback; the
// callback receives a transactional Store to use instead.
package store

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/bizsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/records"
)

// ErrLocalPersistence is returned when neither the primary nor the secondary
// store could complete an operation. The caller must surface it.
var ErrLocalPersistence = errors.New("cannot save: local storage unavailable")

type Store interface {
	Records() records.Repository
	Queue() queue.Repository
	Metadata() metadata.Repository
	// InTx runs fn atomically. Nested calls reuse the outer transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Close() error
}

// ClearAll removes every record, queue entry and metadata key.
func ClearAll(ctx context.Context, s Store) error {
	return s.InTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.Records().Clear(ctx); err != nil {
			return err
		}
		if err := tx.Queue().Clear(ctx); err != nil {
			return err
		}
		return tx.Metadata().Clear(ctx)
	})
}

// Copy replaces the contents of dst with the contents of src, preserving
// queue order.
func Copy(ctx context.Context, src, dst Store) error {
	types, err := src.Records().Types(ctx)
	if err != nil {
		return err
	}
	entries, err := src.Queue().All(ctx)
	if err != nil {
		return err
	}
	meta, err := src.Metadata().List(ctx)
	if err != nil {
		return err
	}

	return dst.InTx(ctx, func(ctx context.Context, tx Store) error {
		if err := ClearAll(ctx, tx); err != nil {
			return err
		}
		for _, t := range types {
			recs, err := src.Records().GetAll(ctx, t)
			if err != nil {
				return err
			}
			for _, r := range recs {
				if err := tx.Records().Put(ctx, t, r); err != nil {
					return err
				}
			}
		}
		for _, e := range entries {
			if err := tx.Queue().Enqueue(ctx, e.Clone()); err != nil {
				return err
			}
		}
		for k, v := range meta {
			if err := tx.Metadata().Set(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}
