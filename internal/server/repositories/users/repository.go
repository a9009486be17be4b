// Package users declares the server-side repository contract for user
// accounts and its SQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/bizsync/internal/server/models"
)

type Repository interface {
	// Create inserts user. A taken email yields common.ErrorConflict.
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}
