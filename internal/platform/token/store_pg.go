package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebase/carebase/internal/platform/db"
)

// PGRefreshTokenStore persists refresh tokens in the master schema. Refresh
// tokens live in the master store so tenant-wide revocation (suspension)
// does not depend on per-tenant bindings.
type PGRefreshTokenStore struct {
	pool *pgxpool.Pool
}

// NewPGRefreshTokenStore creates a store on the master pool.
func NewPGRefreshTokenStore(pool *pgxpool.Pool) *PGRefreshTokenStore {
	return &PGRefreshTokenStore{pool: pool}
}

func (s *PGRefreshTokenStore) Create(ctx context.Context, row *RefreshToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO master.refresh_tokens
			(id, user_id, tenant_id, token_hash, expires_at, created_at, revoked, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		row.ID, row.UserID, row.TenantID, row.TokenHash, row.ExpiresAt, row.CreatedAt, row.Revoked, row.IP, row.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (s *PGRefreshTokenStore) FindByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	row := &RefreshToken{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, tenant_id, token_hash, expires_at, created_at, revoked, ip, user_agent
		FROM master.refresh_tokens WHERE token_hash = $1`, hash,
	).Scan(&row.ID, &row.UserID, &row.TenantID, &row.TokenHash, &row.ExpiresAt, &row.CreatedAt, &row.Revoked, &row.IP, &row.UserAgent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return row, nil
}

// Revoke is the compare-and-swap that makes rotation race-safe: the WHERE
// clause only matches a live row, so of two concurrent rotations exactly one
// sees an affected row.
func (s *PGRefreshTokenStore) Revoke(ctx context.Context, hash string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE master.refresh_tokens SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE`, hash)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE master.refresh_tokens SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE`, userID)
	if err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

func (s *PGRefreshTokenStore) RevokeAllForTenant(ctx context.Context, tenantID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE master.refresh_tokens SET revoked = TRUE
		WHERE tenant_id = $1 AND revoked = FALSE`, tenantID)
	if err != nil {
		return fmt.Errorf("revoke tenant refresh tokens: %w", err)
	}
	return nil
}

// PGCSRFSessionStore persists CSRF sessions in the tenant schema, using the
// request's bound connection. A request without a tenant binding cannot
// touch CSRF state, which is the isolation the binding exists to enforce.
type PGCSRFSessionStore struct{}

// NewPGCSRFSessionStore creates the tenant-schema CSRF store.
func NewPGCSRFSessionStore() *PGCSRFSessionStore {
	return &PGCSRFSessionStore{}
}

func (s *PGCSRFSessionStore) conn(ctx context.Context) (*pgxpool.Conn, error) {
	conn := db.ConnFromContext(ctx)
	if conn == nil {
		return nil, errors.New("csrf store: no tenant binding in context")
	}
	return conn, nil
}

// Replace upserts the user's single CSRF session row.
func (s *PGCSRFSessionStore) Replace(ctx context.Context, session *CSRFSession) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, `
		INSERT INTO csrf_sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET token_hash = $2, expires_at = $3`,
		session.UserID, session.TokenHash, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("replace csrf session: %w", err)
	}
	return nil
}

func (s *PGCSRFSessionStore) FindByUser(ctx context.Context, userID uuid.UUID) (*CSRFSession, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	session := &CSRFSession{}
	err = conn.QueryRow(ctx, `
		SELECT user_id, token_hash, expires_at FROM csrf_sessions WHERE user_id = $1`, userID,
	).Scan(&session.UserID, &session.TokenHash, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("find csrf session: %w", err)
	}
	return session, nil
}

func (s *PGCSRFSessionStore) Delete(ctx context.Context, userID uuid.UUID) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, `DELETE FROM csrf_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete csrf session: %w", err)
	}
	return nil
}
