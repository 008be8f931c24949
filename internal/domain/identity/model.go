// Package identity owns tenant users and their credential lifecycle: login
// with lockout bookkeeping, token refresh, logout, password change, and
// profile reads. PII fields are encrypted at rest with blind indexes for
// equality lookups.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// User statuses. Users are soft-deleted: the row stays for audit trails but
// a deleted user can no longer authenticate.
const (
	UserActive  = "active"
	UserDeleted = "deleted"
)

// User is a tenant staff member or patient account. Email, FirstName and
// LastName hold plaintext in memory and ciphertext at rest; EmailIndex is
// the blind index the store uses for email lookups.
type User struct {
	ID                  uuid.UUID  `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	EmailIndex          string     `json:"-"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role"`
	RoleID              string     `json:"role_id,omitempty"`
	Status              string     `json:"status"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Profile is the decrypted view returned to the authenticated user.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenant_id"`
}
