// Package tenant owns tenant metadata and the tenant lifecycle: registration
// with schema provisioning, the Pending/Active/Suspended state machine, and
// the request-scoped binding of a tenant's isolated store.
package tenant

import (
	"time"
)

// Status is the tenant lifecycle state. Tenants are never hard-deleted;
// Suspended keeps the row and the schema while blocking all tenant traffic.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Tenant is a hospital's metadata row in the master store. ID doubles as the
// schema-safe identifier: the tenant's isolated store lives in schema
// "tenant_<ID>".
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	Status    Status    `json:"status"`
	MaxUsers  int       `json:"max_users"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
