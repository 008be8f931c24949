package platformadmin

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("platform admin not found")
	ErrUsernameTaken = errors.New("username already exists")
)

// Repository is the master-store view of platform admins.
type Repository interface {
	Create(ctx context.Context, a *Admin) error
	FindByID(ctx context.Context, id uuid.UUID) (*Admin, error)
	FindByUsername(ctx context.Context, username string) (*Admin, error)
}
