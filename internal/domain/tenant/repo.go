package tenant

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("tenant not found")
	ErrSubdomainTaken = errors.New("subdomain already registered")
)

// Repository is the master-store view of tenant metadata. Delete exists only
// as the compensating action for a failed registration; lifecycle changes go
// through UpdateStatus.
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	FindByID(ctx context.Context, id string) (*Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, int, error)
}

// Provisioner creates and drops a tenant's isolated store. DropSchema is the
// compensating action for a failed registration and is never invoked on
// tenants that completed provisioning.
type Provisioner interface {
	CreateSchema(ctx context.Context, tenantID string) error
	DropSchema(ctx context.Context, tenantID string) error
}
