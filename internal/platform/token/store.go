package token

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenStore persists refresh-token rows in the master store.
// Implementations must make Revoke an atomic update-with-condition so two
// racing rotations cannot both succeed.
type RefreshTokenStore interface {
	Create(ctx context.Context, row *RefreshToken) error

	// FindByHash returns ErrTokenNotFound when no row matches.
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)

	// Revoke flips revoked=false to true for the given hash. It returns true
	// only if this call performed the flip; false means the row was missing
	// or already revoked.
	Revoke(ctx context.Context, hash string) (bool, error)

	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	RevokeAllForTenant(ctx context.Context, tenantID string) error
}

// CSRFSessionStore persists tenant-user CSRF sessions in the tenant store,
// one row per user.
type CSRFSessionStore interface {
	// Replace stores the session, removing any prior row for the same user.
	Replace(ctx context.Context, session *CSRFSession) error

	// FindByUser returns ErrTokenNotFound when the user has no session.
	FindByUser(ctx context.Context, userID uuid.UUID) (*CSRFSession, error)

	Delete(ctx context.Context, userID uuid.UUID) error
}

// ---------------------------------------------------------------------------
// In-memory implementations
// ---------------------------------------------------------------------------

// InMemoryRefreshTokenStore is a thread-safe RefreshTokenStore for tests and
// single-node development.
type InMemoryRefreshTokenStore struct {
	mu     sync.Mutex
	byHash map[string]*RefreshToken
}

// NewInMemoryRefreshTokenStore creates an empty store.
func NewInMemoryRefreshTokenStore() *InMemoryRefreshTokenStore {
	return &InMemoryRefreshTokenStore{byHash: make(map[string]*RefreshToken)}
}

func (s *InMemoryRefreshTokenStore) Create(_ context.Context, row *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.byHash[row.TokenHash] = &cp
	return nil
}

func (s *InMemoryRefreshTokenStore) FindByHash(_ context.Context, hash string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.byHash[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *InMemoryRefreshTokenStore) Revoke(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.byHash[hash]
	if !ok || row.Revoked {
		return false, nil
	}
	row.Revoked = true
	return true, nil
}

func (s *InMemoryRefreshTokenStore) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.byHash {
		if row.UserID == userID {
			row.Revoked = true
		}
	}
	return nil
}

func (s *InMemoryRefreshTokenStore) RevokeAllForTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.byHash {
		if row.TenantID == tenantID {
			row.Revoked = true
		}
	}
	return nil
}

// LiveCount reports the number of non-revoked, non-expired rows. Test helper.
func (s *InMemoryRefreshTokenStore) LiveCount(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.byHash {
		if !row.Revoked && now.Before(row.ExpiresAt) {
			n++
		}
	}
	return n
}

// InMemoryCSRFSessionStore is a thread-safe CSRFSessionStore for tests and
// single-node development.
type InMemoryCSRFSessionStore struct {
	mu     sync.Mutex
	byUser map[uuid.UUID]*CSRFSession
}

// NewInMemoryCSRFSessionStore creates an empty store.
func NewInMemoryCSRFSessionStore() *InMemoryCSRFSessionStore {
	return &InMemoryCSRFSessionStore{byUser: make(map[uuid.UUID]*CSRFSession)}
}

func (s *InMemoryCSRFSessionStore) Replace(_ context.Context, session *CSRFSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.byUser[session.UserID] = &cp
	return nil
}

func (s *InMemoryCSRFSessionStore) FindByUser(_ context.Context, userID uuid.UUID) (*CSRFSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byUser[userID]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *InMemoryCSRFSessionStore) Delete(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
	return nil
}
