// Package queue provides the durable Sync Queue: an ordered log of
// mutations not yet confirmed by the server.
//
// Entries are ordered by Seq, assigned on Enqueue. Pending entries are
// drained FIFO per entity type; dead entries are kept apart until they are
// requeued or discarded. Storage failures are wrapped with
// common.ErrorStorage.
package queue

import (
	"context"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
)

type Repository interface {
	// Enqueue appends e, assigning ID (if empty) and Seq (if zero).
	Enqueue(ctx context.Context, e *models.QueueEntry) error
	// Get returns (nil, nil) when the entry is gone.
	Get(ctx context.Context, id string) (*models.QueueEntry, error)
	// Pending lists pending entries of a type in FIFO order.
	Pending(ctx context.Context, t models.EntityType) ([]*models.QueueEntry, error)
	// ForRecord lists every entry (any state) targeting a record, FIFO.
	ForRecord(ctx context.Context, t models.EntityType, recordID string) ([]*models.QueueEntry, error)
	// Update persists operation, target, payload, attempts, error, revision and state.
	Update(ctx context.Context, e *models.QueueEntry) error
	Remove(ctx context.Context, id string) error
	// Retarget points all entries for oldID at newID.
	Retarget(ctx context.Context, t models.EntityType, oldID, newID string) error
	// Types lists entity types that have pending entries.
	Types(ctx context.Context) ([]models.EntityType, error)
	DeadLetters(ctx context.Context) ([]*models.QueueEntry, error)
	// All lists every entry in Seq order.
	All(ctx context.Context) ([]*models.QueueEntry, error)
	Counts(ctx context.Context) (models.QueueCounts, error)
	Clear(ctx context.Context) error
}
