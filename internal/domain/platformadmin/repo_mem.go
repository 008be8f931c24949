package platformadmin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository backs tests without Postgres.
type InMemoryRepository struct {
	mu     sync.RWMutex
	admins map[uuid.UUID]*Admin
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{admins: make(map[uuid.UUID]*Admin)}
}

func (r *InMemoryRepository) Create(_ context.Context, a *Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.admins {
		if existing.Username == a.Username {
			return ErrUsernameTaken
		}
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.admins[a.ID] = &cp
	return nil
}

func (r *InMemoryRepository) FindByID(_ context.Context, id uuid.UUID) (*Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.admins[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *InMemoryRepository) FindByUsername(_ context.Context, username string) (*Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.admins {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}
