package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
)

// Repository is the tenant-store view of users. Implementations resolve
// their connection from the request's tenant binding; there is no
// cross-tenant query path.
type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	Count(ctx context.Context) (int, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// RecordLoginFailure atomically increments the failure counter and sets
	// locked_until once the counter reaches threshold. It reports whether the
	// account is now locked.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) (bool, error)
	ResetLoginFailures(ctx context.Context, id uuid.UUID) error
}
