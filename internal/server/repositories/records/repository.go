// Package records stores the schemaless domain documents of every company.
// Rows are keyed by (company, type, id); the document body is a JSON column.
package records

import (
	"context"

	"github.com/dmitrijs2005/bizsync/internal/server/models"
)

type Repository interface {
	// List returns the records of one type, oldest update first.
	List(ctx context.Context, companyID, recordType string) ([]*models.Record, error)
	// ListCompany returns every record a company owns, ordered by type and id.
	ListCompany(ctx context.Context, companyID string) ([]*models.Record, error)
	Get(ctx context.Context, companyID, recordType, id string) (*models.Record, error)
	// GetForUpdate is Get with a row lock; use it inside a transaction.
	GetForUpdate(ctx context.Context, companyID, recordType, id string) (*models.Record, error)
	// Insert fails with common.ErrorConflict when the id is taken.
	Insert(ctx context.Context, rec *models.Record) error
	// Update replaces data and updated_at, or returns common.ErrorNotFound.
	Update(ctx context.Context, rec *models.Record) error
	// Delete returns common.ErrorNotFound when nothing was removed.
	Delete(ctx context.Context, companyID, recordType, id string) error
}
