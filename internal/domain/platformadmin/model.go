// Package platformadmin owns the operators of the platform itself: the
// accounts that approve, suspend and reactivate tenants. Admins live in the
// master store and authenticate through a pipeline that shares no code path
// with tenant users.
package platformadmin

import (
	"time"

	"github.com/google/uuid"
)

// Admin is a platform operator account.
type Admin struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
