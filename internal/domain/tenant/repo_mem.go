package tenant

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository backs tests and local development without Postgres.
type InMemoryRepository struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{tenants: make(map[string]*Tenant)}
}

func (r *InMemoryRepository) Create(_ context.Context, t *Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tenants {
		if existing.Subdomain == t.Subdomain {
			return ErrSubdomainTaken
		}
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *InMemoryRepository) FindByID(_ context.Context, id string) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *InMemoryRepository) FindBySubdomain(_ context.Context, subdomain string) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if t.Subdomain == subdomain {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) UpdateStatus(_ context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tenants, id)
	return nil
}

func (r *InMemoryRepository) List(_ context.Context, limit, offset int) ([]*Tenant, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// NoopProvisioner satisfies Provisioner for tests that do not touch Postgres.
type NoopProvisioner struct {
	Created []string
	Dropped []string
	FailOn  string
}

func (p *NoopProvisioner) CreateSchema(_ context.Context, tenantID string) error {
	if p.FailOn == tenantID {
		return errProvisionFailed
	}
	p.Created = append(p.Created, tenantID)
	return nil
}

func (p *NoopProvisioner) DropSchema(_ context.Context, tenantID string) error {
	p.Dropped = append(p.Dropped, tenantID)
	return nil
}

var errProvisionFailed = errors.New("schema provisioning failed")
