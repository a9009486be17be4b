package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/bizsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/bizsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/logging"
)

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*FallbackStore)(nil)
)

// FallbackStore routes work to the primary store until it fails with a
// storage error, then to the secondary. The switch copies whatever the
// primary can still read into the secondary so reads stay complete.
//
// Only InTx switches stores. Repositories returned by Records, Queue and
// Metadata belong to whichever store is active at call time.
type FallbackStore struct {
	primary   Store
	secondary Store
	logger    logging.Logger

	// opMu is held shared by running transactions and exclusively while
	// data moves between the stores.
	opMu sync.RWMutex

	mu       sync.RWMutex
	degraded bool
}

func NewFallbackStore(primary, secondary Store, l logging.Logger) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary, logger: l.With("module", "store")}
}

// Degraded reports whether the secondary store is in use.
func (f *FallbackStore) Degraded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degraded
}

func (f *FallbackStore) active() Store {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.degraded {
		return f.secondary
	}
	return f.primary
}

func (f *FallbackStore) Records() records.Repository   { return f.active().Records() }
func (f *FallbackStore) Queue() queue.Repository       { return f.active().Queue() }
func (f *FallbackStore) Metadata() metadata.Repository { return f.active().Metadata() }

// InTx runs fn on the active store. A storage failure on the primary moves
// the store to degraded mode and retries fn once on the secondary.
func (f *FallbackStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	f.opMu.RLock()
	if f.Degraded() {
		defer f.opMu.RUnlock()
		return f.onSecondary(ctx, fn, nil)
	}

	err := f.primary.InTx(ctx, fn)
	f.opMu.RUnlock()
	if err == nil || !errors.Is(err, common.ErrorStorage) || ctx.Err() != nil {
		return err
	}

	f.logger.Error(ctx, "primary local store failed, switching to fallback", "error", err)
	f.degrade(ctx)

	f.opMu.RLock()
	defer f.opMu.RUnlock()
	return f.onSecondary(ctx, fn, err)
}

func (f *FallbackStore) onSecondary(ctx context.Context, fn func(ctx context.Context, tx Store) error, primaryErr error) error {
	err := f.secondary.InTx(ctx, fn)
	if err == nil || !errors.Is(err, common.ErrorStorage) {
		return err
	}
	f.logger.Error(ctx, "fallback local store failed", "error", err)
	if primaryErr != nil {
		return fmt.Errorf("%w: %w; %w", ErrLocalPersistence, primaryErr, err)
	}
	return fmt.Errorf("%w: %w", ErrLocalPersistence, err)
}

func (f *FallbackStore) degrade(ctx context.Context) {
	f.opMu.Lock()
	defer f.opMu.Unlock()
	if f.Degraded() {
		return
	}
	if err := Copy(ctx, f.primary, f.secondary); err != nil {
		f.logger.Error(ctx, "could not copy primary data into fallback; fallback starts empty", "error", err)
	}
	f.setDegraded(true)
}

func (f *FallbackStore) setDegraded(v bool) {
	f.mu.Lock()
	f.degraded = v
	f.mu.Unlock()
}

// Recover moves data written while degraded back into the primary and
// resumes using it. It is a no-op when not degraded.
func (f *FallbackStore) Recover(ctx context.Context) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()
	if !f.Degraded() {
		return nil
	}

	if err := Copy(ctx, f.secondary, f.primary); err != nil {
		return fmt.Errorf("primary still unavailable: %w", err)
	}
	if err := ClearAll(ctx, f.secondary); err != nil {
		f.logger.Warn(ctx, "could not clear fallback store after recovery", "error", err)
	}
	f.setDegraded(false)
	f.logger.Info(ctx, "primary local store recovered")
	return nil
}

func (f *FallbackStore) Close() error {
	return errors.Join(f.primary.Close(), f.secondary.Close())
}
