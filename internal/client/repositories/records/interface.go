package records

import (
	"context"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
)

// Repository is the Local Store: records keyed by (entity type, id).
type Repository interface {
	// Put upserts by id.
	Put(ctx context.Context, t models.EntityType, r *models.Record) error
	// Get returns (nil, nil) when the id is absent.
	Get(ctx context.Context, t models.EntityType, id string) (*models.Record, error)
	// GetAll returns every record of the type in no particular order.
	GetAll(ctx context.Context, t models.EntityType) ([]*models.Record, error)
	// Delete is idempotent.
	Delete(ctx context.Context, t models.EntityType, id string) error
	// Remap replaces the row under oldID with r (under r.ID) in one step.
	Remap(ctx context.Context, t models.EntityType, oldID string, r *models.Record) error
	Types(ctx context.Context) ([]models.EntityType, error)
	Count(ctx context.Context, t models.EntityType) (int, error)
	Clear(ctx context.Context) error
}
