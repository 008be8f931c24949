package token

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebase/carebase/internal/platform/crypto"
)

// RefreshToken is the persisted form of an opaque refresh token. The raw
// value is never stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TenantID  string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
	IP        string
	UserAgent string
}

// IssueRefreshToken generates a fresh opaque token for the subject, persists
// its hash with client metadata, and returns the raw value. The raw value is
// disclosed exactly once.
func (s *Service) IssueRefreshToken(ctx context.Context, userID uuid.UUID, tenantID, ip, userAgent string) (string, error) {
	raw, err := crypto.GenerateToken(rawTokenBytes)
	if err != nil {
		return "", fmt.Errorf("token: issue refresh: %w", err)
	}

	now := s.now()
	row := &RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TenantID:  tenantID,
		TokenHash: crypto.HashToken(raw),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := s.refreshStore.Create(ctx, row); err != nil {
		return "", fmt.Errorf("token: persist refresh: %w", err)
	}
	return raw, nil
}

// RotateRefreshToken implements rotate-on-use. The presented raw value is
// looked up by hash and atomically revoked; only then is a replacement
// issued. A second rotation with the same raw value observes the revoked row
// and fails with ErrTokenRevoked, which is the replay signal.
func (s *Service) RotateRefreshToken(ctx context.Context, raw, ip, userAgent string) (*RefreshToken, string, error) {
	row, err := s.refreshStore.FindByHash(ctx, crypto.HashToken(raw))
	if err != nil {
		return nil, "", err
	}
	if row.Revoked {
		return nil, "", ErrTokenRevoked
	}
	if s.now().After(row.ExpiresAt) {
		return nil, "", ErrTokenExpired
	}

	// Revoke is compare-and-swap on revoked=false. If a concurrent rotation
	// won, this observes zero rows updated and the request fails.
	revoked, err := s.refreshStore.Revoke(ctx, row.TokenHash)
	if err != nil {
		return nil, "", fmt.Errorf("token: revoke on rotate: %w", err)
	}
	if !revoked {
		return nil, "", ErrTokenRevoked
	}

	newRaw, err := s.IssueRefreshToken(ctx, row.UserID, row.TenantID, ip, userAgent)
	if err != nil {
		return nil, "", err
	}
	return row, newRaw, nil
}

// RevokeRefreshToken revokes the row matching the raw value, if any. Used by
// logout; revoking an already-revoked or unknown token is not an error.
func (s *Service) RevokeRefreshToken(ctx context.Context, raw string) error {
	if _, err := s.refreshStore.Revoke(ctx, crypto.HashToken(raw)); err != nil {
		return fmt.Errorf("token: revoke refresh: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live refresh token of one user.
// Called on password change.
func (s *Service) RevokeUserRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	return s.refreshStore.RevokeAllForUser(ctx, userID)
}

// RevokeTenantRefreshTokens revokes every live refresh token belonging to a
// tenant's users. Called on tenant suspension so a suspended tenant cannot
// mint new access tokens once the outstanding ones expire.
func (s *Service) RevokeTenantRefreshTokens(ctx context.Context, tenantID string) error {
	return s.refreshStore.RevokeAllForTenant(ctx, tenantID)
}
